package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/leader"
	"github.com/aprovacriativos/backend/internal/metrics"
)

const maintenanceLockKey = "gate:leader:maintenance"

type pruner interface {
	PruneAttempts(ctx context.Context, before, now time.Time) (int64, error)
	PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceRunner prunes old attempt rows on a fixed interval. With Redis
// configured only one replica runs it at a time.
type MaintenanceRunner struct {
	store     pruner
	redis     *redis.Client
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewMaintenanceRunner(store pruner, rdb *redis.Client, retention time.Duration) *MaintenanceRunner {
	return &MaintenanceRunner{
		store:     store,
		redis:     rdb,
		retention: retention,
		interval:  time.Hour,
		now:       time.Now,
		log:       log.With().Str("component", "maintenance").Logger(),
	}
}

// Start blocks until ctx is cancelled.
func (m *MaintenanceRunner) Start(ctx context.Context) error {
	err := leader.Run(ctx, m.redis, maintenanceLockKey, leader.DefaultTTL, m.loop)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.log.Error().Err(err).Msg("maintenance routine stopped")
		return err
	}
	return nil
}

func (m *MaintenanceRunner) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce prunes validation attempts past the retention period and admin
// login attempts older than a day.
func (m *MaintenanceRunner) RunOnce(ctx context.Context) {
	now := m.now().UTC()

	n, err := m.store.PruneAttempts(ctx, now.Add(-m.retention), now)
	if err != nil {
		m.log.Error().Err(err).Msg("pruning validation attempts failed")
	} else {
		metrics.RecordPruned("token_validation_attempts", n)
		m.log.Info().Int64("rows", n).Msg("pruned validation attempts")
	}

	n, err = m.store.PruneLoginAttempts(ctx, now.Add(-24*time.Hour))
	if err != nil {
		m.log.Error().Err(err).Msg("pruning admin login attempts failed")
	} else {
		metrics.RecordPruned("admin_login_attempts", n)
	}
}
