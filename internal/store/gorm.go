// Package store persists the approval gate's attempt log and answers the
// gate's questions about it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/models"
)

// GormStore evaluates the block policy in Go over rows read through gorm. It
// works against both Postgres and sqlite.
type GormStore struct {
	db     *gorm.DB
	policy gate.Policy
}

var _ gate.Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, policy gate.Policy) *GormStore {
	return &GormStore{db: db, policy: policy}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

// clearedAt returns the latest clearance of ip, or the zero time when the IP
// was never cleared.
func (s *GormStore) clearedAt(ctx context.Context, ip string) (time.Time, error) {
	var c models.IPClearance
	err := s.db.WithContext(ctx).
		Where("ip_address = ?", ip).
		Order("cleared_at DESC").
		Limit(1).
		Find(&c).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("load clearance: %w", err)
	}
	return c.ClearedAt, nil
}

func (s *GormStore) IsIPBlocked(ctx context.Context, ip string, now time.Time) (gate.BlockState, error) {
	now = now.UTC()
	cleared, err := s.clearedAt(ctx, ip)
	if err != nil {
		return gate.BlockState{}, err
	}

	q := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
		Where("ip_address = ? AND success = ? AND attempted_at <= ?", ip, false, now)
	if !cleared.IsZero() {
		q = q.Where("attempted_at > ?", cleared)
	}
	var failures []time.Time
	if err := q.Order("attempted_at ASC").Pluck("attempted_at", &failures).Error; err != nil {
		return gate.BlockState{}, fmt.Errorf("load failures: %w", err)
	}
	return gate.EvaluateBlock(failures, now, s.policy), nil
}

func (s *GormStore) CountAttempts(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
		Where("ip_address = ? AND attempted_at >= ?", ip, since.UTC()).
		Count(&n).Error
	return n, err
}

// CountFailedAttempts counts failures since the given time that happened after
// the IP's latest clearance.
func (s *GormStore) CountFailedAttempts(ctx context.Context, ip string, since time.Time) (int64, error) {
	since = since.UTC()
	cleared, err := s.clearedAt(ctx, ip)
	if err != nil {
		return 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
		Where("ip_address = ? AND success = ? AND attempted_at >= ?", ip, false, since)
	if cleared.After(since) {
		q = q.Where("attempted_at > ?", cleared)
	}
	var n int64
	err = q.Count(&n).Error
	return n, err
}

func (s *GormStore) ValidateApprovalToken(ctx context.Context, token string, now time.Time) (*gate.TokenInfo, error) {
	if token == "" {
		return nil, gate.ErrTokenInvalid
	}
	now = now.UTC()

	var t models.ApprovalToken
	err := s.db.WithContext(ctx).
		Preload("Client").
		Where("token = ? AND expires_at > ?", token, now).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gate.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load approval token: %w", err)
	}
	if t.Client == nil {
		return nil, gate.ErrTokenInvalid
	}

	if t.UsedAt == nil {
		if err := s.db.WithContext(ctx).Model(&models.ApprovalToken{}).
			Where("id = ? AND used_at IS NULL", t.ID).
			Update("used_at", now).Error; err != nil {
			return nil, fmt.Errorf("mark approval token used: %w", err)
		}
	}

	return &gate.TokenInfo{
		ClientID:   t.Client.ID,
		ClientSlug: t.Client.Slug,
		ClientName: t.Client.Name,
		Month:      t.Month,
	}, nil
}

func (s *GormStore) LogValidationAttempt(ctx context.Context, a gate.Attempt) error {
	row := models.ValidationAttempt{
		IPAddress:      a.IP,
		TokenAttempted: a.TokenPrefix,
		Success:        a.Success,
		UserAgent:      a.UserAgent,
		AttemptedAt:    a.AttemptedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}
