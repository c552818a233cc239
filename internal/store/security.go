package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aprovacriativos/backend/internal/models"
)

// BlockedIP is one row of the security console's block list.
type BlockedIP struct {
	IPAddress      string     `json:"ip_address"`
	Permanent      bool       `json:"is_permanent"`
	BlockedUntil   *time.Time `json:"blocked_until"`
	FailedAttempts int        `json:"failed_attempts"`
	LastAttemptAt  time.Time  `json:"last_attempt"`
	UserAgents     []string   `json:"user_agents"`
}

// blockCandidates lists the IPs that can be blocked at now: those with a
// failure in the current escalation window, and those with enough failures
// overall to have earned a permanent block at some point.
func (s *GormStore) blockCandidates(ctx context.Context, now time.Time) ([]string, error) {
	var ips []string
	err := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
		Select("ip_address").
		Where("success = ?", false).
		Group("ip_address").
		Having("MAX(attempted_at) >= ? OR COUNT(*) >= ?", now.UTC().Add(-s.policy.EscalationWindow), s.policy.MaxFailedAttempts).
		Pluck("ip_address", &ips).Error
	if err != nil {
		return nil, fmt.Errorf("list failing ips: %w", err)
	}
	return ips, nil
}

// BlockedIPs evaluates every block candidate and returns those currently
// blocked, most recent first.
func (s *GormStore) BlockedIPs(ctx context.Context, now time.Time) ([]BlockedIP, error) {
	ips, err := s.blockCandidates(ctx, now)
	if err != nil {
		return nil, err
	}

	blocked := make([]BlockedIP, 0)
	for _, ip := range ips {
		st, err := s.IsIPBlocked(ctx, ip, now)
		if err != nil {
			return nil, err
		}
		if !st.Blocked {
			continue
		}
		var last models.ValidationAttempt
		if err := s.db.WithContext(ctx).
			Where("ip_address = ?", ip).
			Order("attempted_at DESC").
			Limit(1).
			Find(&last).Error; err != nil {
			return nil, fmt.Errorf("load last attempt: %w", err)
		}
		agents := make([]string, 0)
		if err := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
			Distinct("user_agent").
			Where("ip_address = ? AND user_agent <> ''", ip).
			Limit(10).
			Pluck("user_agent", &agents).Error; err != nil {
			return nil, fmt.Errorf("load user agents: %w", err)
		}
		blocked = append(blocked, BlockedIP{
			IPAddress:      ip,
			Permanent:      st.Permanent,
			BlockedUntil:   st.BlockedUntil,
			FailedAttempts: st.FailedAttempts,
			LastAttemptAt:  last.AttemptedAt,
			UserAgents:     agents,
		})
	}
	sort.Slice(blocked, func(i, j int) bool {
		return blocked[i].LastAttemptAt.After(blocked[j].LastAttemptAt)
	})
	return blocked, nil
}

// RecentAttempts lists the newest attempts, optionally for a single IP.
func (s *GormStore) RecentAttempts(ctx context.Context, ip string, limit int) ([]models.ValidationAttempt, error) {
	q := s.db.WithContext(ctx).Order("attempted_at DESC").Limit(limit)
	if ip != "" {
		q = q.Where("ip_address = ?", ip)
	}
	var attempts []models.ValidationAttempt
	if err := q.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// AttemptsSince returns attempts at or after since in chronological order.
func (s *GormStore) AttemptsSince(ctx context.Context, since time.Time) ([]models.ValidationAttempt, error) {
	var attempts []models.ValidationAttempt
	err := s.db.WithContext(ctx).
		Where("attempted_at >= ?", since.UTC()).
		Order("attempted_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// Unblock appends a clearance for ip. The attempt log itself is never edited;
// failures before the clearance simply stop counting.
func (s *GormStore) Unblock(ctx context.Context, ip, clearedBy, reason string, now time.Time) (*models.IPClearance, error) {
	c := &models.IPClearance{
		IPAddress: ip,
		ClearedBy: clearedBy,
		Reason:    reason,
		ClearedAt: now.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create clearance: %w", err)
	}
	return c, nil
}

// PruneAttempts deletes attempts older than before, keeping the full history
// of permanently blocked IPs so their block survives.
func (s *GormStore) PruneAttempts(ctx context.Context, before, now time.Time) (int64, error) {
	blocked, err := s.BlockedIPs(ctx, now)
	if err != nil {
		return 0, err
	}
	keep := make([]string, 0, len(blocked))
	for _, b := range blocked {
		if b.Permanent {
			keep = append(keep, b.IPAddress)
		}
	}

	q := s.db.WithContext(ctx).Where("attempted_at < ?", before.UTC())
	if len(keep) > 0 {
		q = q.Where("ip_address NOT IN ?", keep)
	}
	res := q.Delete(&models.ValidationAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&models.AdminLoginAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune login attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Alerts lists sent security alerts, newest first.
func (s *GormStore) Alerts(ctx context.Context, limit int) ([]models.SecurityAlert, error) {
	var alerts []models.SecurityAlert
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}
