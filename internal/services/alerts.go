package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/metrics"
	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/notify"
)

type AlertLevel string

const (
	AlertNone      AlertLevel = ""
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertPermanent AlertLevel = "permanent"
)

// LevelFor maps a security event to the alert level it deserves.
func LevelFor(ev gate.SecurityEvent, p gate.Policy) AlertLevel {
	switch {
	case ev.Kind == gate.EventBlockedPermanent || ev.FailedAttempts >= p.MaxFailedAttempts:
		return AlertPermanent
	case ev.Kind == gate.EventBlockedTemporary || ev.Kind == gate.EventRateLimited:
		return AlertCritical
	case ev.FailedAttempts >= p.TempWarnThreshold:
		return AlertCritical
	case ev.FailedAttempts >= p.WarnThreshold:
		return AlertWarning
	default:
		return AlertNone
	}
}

type blockChecker interface {
	IsIPBlocked(ctx context.Context, ip string, now time.Time) (gate.BlockState, error)
}

// SecurityAlertService turns gate events into at most one alert per IP,
// level and UTC day. Each alert is stored, written to the activity log and
// posted to the security webhook.
type SecurityAlertService struct {
	db      *gorm.DB
	blocks  blockChecker
	dedupe  notify.Deduper
	webhook *notify.Webhook
	policy  gate.Policy
	log     zerolog.Logger
}

func NewSecurityAlertService(db *gorm.DB, blocks blockChecker, dedupe notify.Deduper, webhook *notify.Webhook, policy gate.Policy) *SecurityAlertService {
	if dedupe == nil {
		dedupe = notify.AlwaysClaim{}
	}
	return &SecurityAlertService{
		db:      db,
		blocks:  blocks,
		dedupe:  dedupe,
		webhook: webhook,
		policy:  policy,
		log:     log.With().Str("component", "alerts").Logger(),
	}
}

// Handle is a notify.Handler. A claimed de-dup key is released again when the
// alert cannot be stored or delivered, so a later event can retry it.
func (s *SecurityAlertService) Handle(ctx context.Context, ev gate.SecurityEvent) (err error) {
	level := LevelFor(ev, s.policy)
	if level == AlertNone {
		return nil
	}
	day := ev.OccurredAt.UTC().Format("2006-01-02")
	key := fmt.Sprintf("%s:%s:%s", ev.IP, level, day)

	claimed, claimErr := s.dedupe.Claim(ctx, key)
	if claimErr != nil {
		s.log.Warn().Err(claimErr).Msg("alert de-dup unavailable, relying on the alert table")
	} else if !claimed {
		metrics.RecordNotification("duplicate")
		return nil
	}
	if claimed {
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.dedupe.Release(context.WithoutCancel(ctx), key); relErr != nil {
				s.log.Warn().Err(relErr).Str("key", key).Msg("failed to release alert de-dup key")
			}
		}()
	}

	block, err := s.blocks.IsIPBlocked(ctx, ev.IP, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("load block state: %w", err)
	}

	alert := models.SecurityAlert{
		IPAddress:    ev.IP,
		AlertType:    string(level),
		AlertDate:    day,
		EventKind:    string(ev.Kind),
		FailureCount: ev.FailedAttempts,
		IsBlocked:    block.Blocked,
		IsPermanent:  block.Permanent,
		BlockedUntil: block.BlockedUntil,
		UserAgents:   s.recentUserAgents(ctx, ev.IP, ev.OccurredAt),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&alert)
	if res.Error != nil {
		return fmt.Errorf("record alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.RecordNotification("duplicate")
		return nil
	}

	details := map[string]any{
		"ip_address":    ev.IP,
		"alert_level":   level,
		"event":         ev.Kind,
		"failure_count": ev.FailedAttempts,
		"is_blocked":    block.Blocked,
		"is_permanent":  block.Permanent,
		"blocked_until": block.BlockedUntil,
		"user_agent":    ev.UserAgent,
		"user_agents":   alert.UserAgents,
	}
	if err := s.logActivity(ctx, level, ev, details); err != nil {
		s.log.Error().Err(err).Str("ip", ev.IP).Msg("failed to write activity log")
	}

	s.log.Warn().Str("ip", ev.IP).Str("level", string(level)).Int("failed_attempts", ev.FailedAttempts).Msg("security alert raised")

	if s.webhook == nil {
		metrics.RecordNotification("sent")
		return nil
	}
	payload := notify.Payload{
		Type:      "security",
		Subject:   alertSubject(level, ev.IP),
		Message:   alertMessage(level, ev),
		Details:   details,
		Timestamp: ev.OccurredAt.UTC(),
		Source:    "security-system",
		Priority:  "critical",
	}
	if err := s.webhook.Send(ctx, payload); err != nil {
		// Drop the row so the next event for this level and day sends again.
		if delErr := s.db.WithContext(context.WithoutCancel(ctx)).Delete(&alert).Error; delErr != nil {
			s.log.Error().Err(delErr).Str("ip", ev.IP).Msg("failed to drop undelivered alert")
		}
		return fmt.Errorf("send security webhook: %w", err)
	}
	metrics.RecordNotification("sent")
	return nil
}

func (s *SecurityAlertService) recentUserAgents(ctx context.Context, ip string, now time.Time) models.StringList {
	var agents []string
	err := s.db.WithContext(ctx).Model(&models.ValidationAttempt{}).
		Distinct("user_agent").
		Where("ip_address = ? AND attempted_at >= ? AND user_agent <> ''", ip, now.Add(-s.policy.EscalationWindow).UTC()).
		Limit(10).
		Pluck("user_agent", &agents).Error
	if err != nil {
		s.log.Warn().Err(err).Str("ip", ip).Msg("failed to load user agents")
		return nil
	}
	return models.StringList(agents)
}

func (s *SecurityAlertService) logActivity(ctx context.Context, level AlertLevel, ev gate.SecurityEvent, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	meta := string(raw)
	entry := models.ActivityLog{
		Entity:    "security_alert",
		Action:    "failed_validation_" + string(level),
		Metadata:  &meta,
		IPAddress: ev.IP,
		UserAgent: ev.UserAgent,
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

func alertSubject(level AlertLevel, ip string) string {
	switch level {
	case AlertPermanent:
		return "IP permanently blocked: " + ip
	case AlertCritical:
		return "IP temporarily blocked: " + ip
	default:
		return "Suspicious approval token attempts from " + ip
	}
}

func alertMessage(level AlertLevel, ev gate.SecurityEvent) string {
	switch level {
	case AlertPermanent:
		return fmt.Sprintf("%s reached %d failed approval token attempts and is blocked until an administrator clears it.", ev.IP, ev.FailedAttempts)
	case AlertCritical:
		if ev.Kind == gate.EventRateLimited {
			return fmt.Sprintf("%s exceeded the validation rate limit.", ev.IP)
		}
		return fmt.Sprintf("%s has %d failed approval token attempts in the last hour.", ev.IP, ev.FailedAttempts)
	default:
		return fmt.Sprintf("%s has %d failed approval token attempts in the last hour.", ev.IP, ev.FailedAttempts)
	}
}
