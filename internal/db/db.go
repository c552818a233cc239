package db

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aprovacriativos/backend/internal/models"
)

type Config struct {
	DatabaseURL     string
	PoolSize        int
	PoolRecycle     time.Duration
	PoolPrePing     bool
	ConnectTimeout  time.Duration
	ApplicationName string
}

const sqlitePrefix = "sqlite:"

// IsSQLite reports whether url selects the embedded sqlite driver
// ("sqlite:<path>" or "sqlite::memory:").
func IsSQLite(url string) bool {
	return strings.HasPrefix(url, sqlitePrefix)
}

func Open(cfg Config) (*gorm.DB, error) {
	// Warn level; queries slower than 1s are logged.
	gormLogger := logger.New(
		zerologWriter{},
		logger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	}

	if IsSQLite(cfg.DatabaseURL) {
		return openSQLite(strings.TrimPrefix(cfg.DatabaseURL, sqlitePrefix), gormCfg)
	}

	databaseURL := withParams(cfg.DatabaseURL, cfg)
	db, err := gorm.Open(postgres.Open(databaseURL), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.PoolSize)
	idleConns := cfg.PoolSize / 2
	if idleConns < 2 {
		idleConns = 2
	}
	sqlDB.SetMaxIdleConns(idleConns)
	sqlDB.SetConnMaxLifetime(cfg.PoolRecycle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("db ping failed")
	}

	for _, query := range []string{
		"SET timezone = 'UTC'",
		"SET statement_timeout = '30s'",
		"SET lock_timeout = '10s'",
	} {
		if _, err := sqlDB.Exec(query); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("session setting failed")
		}
	}

	return db, nil
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if path == "" || path == ":memory:" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection keeps shared in-memory databases free of table locks.
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Agency{},
		&models.Client{},
		&models.ApprovalToken{},
		&models.AdminUser{},
		&models.AdminLoginAttempt{},
		&models.ValidationAttempt{},
		&models.IPClearance{},
		&models.SecurityAlert{},
		&models.ActivityLog{},
	)
}

func withParams(databaseURL string, cfg Config) string {
	if databaseURL == "" {
		return databaseURL
	}
	params := []string{}
	if !containsParam(databaseURL, "timezone") {
		params = append(params, "timezone=UTC")
	}
	if !containsParam(databaseURL, "connect_timeout") {
		params = append(params, "connect_timeout=10")
	}
	if cfg.ApplicationName != "" && !containsParam(databaseURL, "application_name") {
		params = append(params, "application_name="+cfg.ApplicationName)
	}
	if !containsParam(databaseURL, "sslmode") {
		params = append(params, "sslmode=require")
	}
	if len(params) == 0 {
		return databaseURL
	}
	separator := "?"
	if strings.Contains(databaseURL, "?") {
		separator = "&"
	}
	return databaseURL + separator + strings.Join(params, "&")
}

func containsParam(url string, param string) bool {
	return strings.Contains(url, param+"=")
}

// zerologWriter adapts gorm's printf logger to zerolog.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}
