// @title Approval Gate API
// @version 1.0
// @description Approval token validation with per-IP rate limiting and progressive blocking, plus the admin security console.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5001
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/aprovacriativos/backend/docs" // Import generated docs
	"github.com/aprovacriativos/backend/internal/config"
	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/logging"
	"github.com/aprovacriativos/backend/internal/notify"
	"github.com/aprovacriativos/backend/internal/server"
	"github.com/aprovacriativos/backend/internal/services"
	"github.com/aprovacriativos/backend/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Load()
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "server"})
	if err := cfg.ApplyPolicyFile(); err != nil {
		return err
	}

	dbCfg := db.Config{
		DatabaseURL:     cfg.DatabaseURL,
		PoolSize:        cfg.PoolSize,
		PoolRecycle:     cfg.PoolRecycle,
		PoolPrePing:     cfg.PoolPrePing,
		ConnectTimeout:  cfg.ConnectTimeout,
		ApplicationName: cfg.ApplicationName,
	}
	gormDB, err := db.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}

	rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var pool *pgxpool.Pool
	if !db.IsSQLite(cfg.DatabaseURL) {
		pool, err = db.OpenPool(ctx, dbCfg)
		if err != nil {
			if cfg.StoreMode == "procedures" {
				return err
			}
			log.Warn().Err(err).Msg("pgx pool unavailable, health check will skip it")
		} else {
			defer pool.Close()
		}
	}

	gormStore := store.NewGormStore(gormDB, cfg.Gate)
	var gateStore gate.Store = gormStore
	if cfg.StoreMode == "procedures" {
		if pool == nil {
			return errors.New("STORE_MODE=procedures needs a postgres DATABASE_URL")
		}
		gateStore = store.NewRPCStore(pool, cfg.Gate)
	}
	log.Info().Str("store", cfg.StoreMode).Bool("redis", rdb != nil).Msg("gate store selected")

	var dedupe notify.Deduper
	if rdb != nil {
		dedupe = notify.NewRedisDeduper(rdb, 24*time.Hour)
	}
	webhook := notify.NewWebhook(cfg.SecurityWebhookURL, cfg.WebhookTimeout, cfg.WebhookRetries)
	alerts := services.NewSecurityAlertService(gormDB, gateStore, dedupe, webhook, cfg.Gate)

	// The dispatcher outlives the signal context so queued alerts drain on shutdown.
	dispatcher := notify.NewDispatcher(alerts.Handle, cfg.NotifyQueueSize, cfg.NotifyWorkers)
	dispatcher.Start(context.Background())
	defer dispatcher.Close()

	g := gate.New(gateStore, dispatcher, cfg.Gate)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	_ = server.New(e, server.Deps{
		DB:    gormDB,
		Gate:  g,
		Store: gormStore,
		Pool:  pool,
		Redis: rdb,
	}, cfg)

	maintenance := services.NewMaintenanceRunner(gormStore, rdb, cfg.AttemptRetention)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return maintenance.Start(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
