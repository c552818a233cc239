package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed procedures.sql
var proceduresSQL string

// OpenPool opens a pgx pool for the procedures store and health checks.
func OpenPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(withParams(cfg.DatabaseURL, cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.PoolRecycle > 0 {
		poolCfg.MaxConnLifetime = cfg.PoolRecycle
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// InstallProcedures (re)creates the gate SQL functions.
func InstallProcedures(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, proceduresSQL); err != nil {
		return fmt.Errorf("install procedures: %w", err)
	}
	return nil
}
