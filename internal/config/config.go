package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aprovacriativos/backend/internal/gate"
)

type AppConfig struct {
	Port string

	DatabaseURL string
	// orm evaluates gate rules in Go over gorm; procedures calls the Postgres functions.
	StoreMode string

	RedisURL string

	JWTSecret string
	JWTExpiry time.Duration

	PublicAppURL string

	SecurityWebhookURL string
	WebhookTimeout     time.Duration
	WebhookRetries     int
	NotifyQueueSize    int
	NotifyWorkers      int

	AttemptRetention time.Duration

	// Requests per second per IP across the whole API; 0 disables the limiter.
	GlobalRateLimit int

	LogLevel  string
	LogFormat string

	SFTPHost string
	SFTPPort int
	SFTPUser string
	SFTPPass string
	SFTPDir  string

	PolicyFile string
	Gate       gate.Policy

	PoolSize        int
	PoolRecycle     time.Duration
	PoolPrePing     bool
	ConnectTimeout  time.Duration
	ApplicationName string
}

func Load() AppConfig {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := AppConfig{}
	cfg.Port = getenv("PORT", "5001")
	cfg.DatabaseURL = getenv("DATABASE_URL", defaultPgURL())
	cfg.StoreMode = strings.ToLower(getenv("STORE_MODE", "orm"))

	cfg.RedisURL = getenv("REDIS_URL", "")

	cfg.JWTSecret = getenv("JWT_SECRET", "change-this-jwt-secret-in-production")
	cfg.JWTExpiry = time.Duration(getenvInt("JWT_EXPIRY_HOURS", 12)) * time.Hour

	cfg.PublicAppURL = strings.TrimRight(getenv("PUBLIC_APP_URL", "https://aprovacriativos.com.br"), "/")

	cfg.SecurityWebhookURL = getenv("SECURITY_WEBHOOK_URL", "")
	cfg.WebhookTimeout = time.Duration(getenvInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second
	cfg.WebhookRetries = getenvInt("WEBHOOK_RETRIES", 3)
	cfg.NotifyQueueSize = getenvInt("NOTIFY_QUEUE_SIZE", 256)
	cfg.NotifyWorkers = getenvInt("NOTIFY_WORKERS", 2)

	cfg.AttemptRetention = time.Duration(getenvInt("ATTEMPT_RETENTION_HOURS", 24*30)) * time.Hour

	cfg.GlobalRateLimit = getenvIntOrZero("GLOBAL_RATE_LIMIT", 20)

	cfg.LogLevel = getenv("LOG_LEVEL", "info")
	cfg.LogFormat = getenv("LOG_FORMAT", "auto")

	cfg.SFTPHost = getenv("SFTP_HOST", "")
	cfg.SFTPPort = getenvInt("SFTP_PORT", 22)
	cfg.SFTPUser = getenv("SFTP_USER", "")
	cfg.SFTPPass = getenv("SFTP_PASS", "")
	cfg.SFTPDir = getenv("SFTP_DIR", "security-exports")

	cfg.Gate = gate.DefaultPolicy()
	cfg.Gate.BurstWindow = getenvSeconds("BURST_WINDOW_SECONDS", cfg.Gate.BurstWindow)
	cfg.Gate.BurstLimit = getenvInt("BURST_LIMIT", cfg.Gate.BurstLimit)
	cfg.Gate.EscalationWindow = getenvSeconds("ESCALATION_WINDOW_SECONDS", cfg.Gate.EscalationWindow)
	cfg.Gate.WarnThreshold = getenvInt("WARN_THRESHOLD", cfg.Gate.WarnThreshold)
	cfg.Gate.TempWarnThreshold = getenvInt("TEMP_WARN_THRESHOLD", cfg.Gate.TempWarnThreshold)
	cfg.Gate.TempBlockThreshold = getenvInt("TEMP_BLOCK_THRESHOLD", cfg.Gate.TempBlockThreshold)
	cfg.Gate.MaxFailedAttempts = getenvInt("MAX_FAILED_ATTEMPTS", cfg.Gate.MaxFailedAttempts)
	cfg.Gate.TempBlockDuration = time.Duration(getenvInt("TEMP_BLOCK_MINUTES", int(cfg.Gate.TempBlockDuration/time.Minute))) * time.Minute

	cfg.PolicyFile = getenv("GATE_POLICY_FILE", "")

	cfg.PoolSize = getenvInt("DB_POOL_SIZE", 25)
	cfg.PoolRecycle = time.Duration(getenvInt("DB_POOL_RECYCLE_SECONDS", 300)) * time.Second
	cfg.PoolPrePing = getenv("DB_POOL_PREPING", "true") == "true"
	cfg.ConnectTimeout = time.Duration(getenvInt("DB_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second
	cfg.ApplicationName = getenv("DB_APPLICATION_NAME", "approval_gate")
	return cfg
}

// policyFile mirrors gate.Policy with YAML-friendly units.
type policyFile struct {
	BurstWindowSeconds      *int `yaml:"burst_window_seconds"`
	BurstLimit              *int `yaml:"burst_limit"`
	EscalationWindowSeconds *int `yaml:"escalation_window_seconds"`
	WarnThreshold           *int `yaml:"warn_threshold"`
	TempWarnThreshold       *int `yaml:"temp_warn_threshold"`
	TempBlockThreshold      *int `yaml:"temp_block_threshold"`
	MaxFailedAttempts       *int `yaml:"max_failed_attempts"`
	TempBlockMinutes        *int `yaml:"temp_block_minutes"`
}

// ApplyPolicyFile overlays the YAML policy file (if configured) on top of the
// environment values and validates the result.
func (c *AppConfig) ApplyPolicyFile() error {
	if c.PolicyFile == "" {
		return c.Gate.Validate()
	}
	data, err := os.ReadFile(c.PolicyFile)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	return c.applyPolicyYAML(data)
}

func (c *AppConfig) applyPolicyYAML(data []byte) error {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	p := c.Gate
	if pf.BurstWindowSeconds != nil {
		p.BurstWindow = time.Duration(*pf.BurstWindowSeconds) * time.Second
	}
	if pf.BurstLimit != nil {
		p.BurstLimit = *pf.BurstLimit
	}
	if pf.EscalationWindowSeconds != nil {
		p.EscalationWindow = time.Duration(*pf.EscalationWindowSeconds) * time.Second
	}
	if pf.WarnThreshold != nil {
		p.WarnThreshold = *pf.WarnThreshold
	}
	if pf.TempWarnThreshold != nil {
		p.TempWarnThreshold = *pf.TempWarnThreshold
	}
	if pf.TempBlockThreshold != nil {
		p.TempBlockThreshold = *pf.TempBlockThreshold
	}
	if pf.MaxFailedAttempts != nil {
		p.MaxFailedAttempts = *pf.MaxFailedAttempts
	}
	if pf.TempBlockMinutes != nil {
		p.TempBlockDuration = time.Duration(*pf.TempBlockMinutes) * time.Minute
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.Gate = p
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n != 0 {
			return n
		}
	}
	return def
}

// getenvIntOrZero is getenvInt for keys where an explicit 0 means "off".
func getenvIntOrZero(key string, def int) int {
	if strings.TrimSpace(os.Getenv(key)) == "0" {
		return 0
	}
	return getenvInt(key, def)
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	return time.Duration(getenvInt(key, int(def/time.Second))) * time.Second
}

func defaultPgURL() string {
	user := getenv("POSTGRES_USER", "postgres")
	pass := getenv("POSTGRES_PASSWORD", "postgres")
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	db := getenv("POSTGRES_DB", "postgres")
	return "postgresql://" + user + ":" + pass + "@" + host + ":" + port + "/" + db
}
