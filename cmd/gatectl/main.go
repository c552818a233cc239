package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/config"
	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "gatectl",
	Short:         "Operate the approval gate",
	Long:          `Administrative commands for the approval gate: admins, approval links, IP blocks and exports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Format: "console", Level: os.Getenv("LOG_LEVEL"), Component: "gatectl"})
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(issueTokenCmd)
	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(exportAttemptsCmd)
	rootCmd.AddCommand(installProceduresCmd)
}

// openDB is replaced in tests.
var openDB = func() (*gorm.DB, config.AppConfig, error) {
	cfg := config.Load()
	if err := cfg.ApplyPolicyFile(); err != nil {
		return nil, cfg, err
	}
	gormDB, err := db.Open(dbConfig(cfg))
	if err != nil {
		return nil, cfg, fmt.Errorf("db open: %w", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, cfg, err
	}
	return gormDB, cfg, nil
}

func dbConfig(cfg config.AppConfig) db.Config {
	return db.Config{
		DatabaseURL:     cfg.DatabaseURL,
		PoolSize:        cfg.PoolSize,
		PoolRecycle:     cfg.PoolRecycle,
		PoolPrePing:     cfg.PoolPrePing,
		ConnectTimeout:  cfg.ConnectTimeout,
		ApplicationName: cfg.ApplicationName,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
