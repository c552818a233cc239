// Package gate guards the client approval pages behind approval tokens and
// throttles token guessing per IP address.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/metrics"
)

// ErrTokenInvalid is returned by Store.ValidateApprovalToken for tokens that
// do not exist or have expired.
var ErrTokenInvalid = errors.New("approval token invalid or expired")

// Request carries everything the gate reads from an HTTP request. It is built
// once at the boundary.
type Request struct {
	IP        string
	UserAgent string
	Token     string
}

// Attempt is one row of the append-only validation log.
type Attempt struct {
	IP          string
	TokenPrefix string
	Success     bool
	UserAgent   string
	AttemptedAt time.Time
}

// TokenInfo is what a valid approval token is bound to.
type TokenInfo struct {
	ClientID   string
	ClientSlug string
	ClientName string
	Month      string
}

// Store is the persistence the gate depends on. Implementations must keep
// the attempt log append-only and derive block state from it.
type Store interface {
	IsIPBlocked(ctx context.Context, ip string, now time.Time) (BlockState, error)
	CountAttempts(ctx context.Context, ip string, since time.Time) (int64, error)
	CountFailedAttempts(ctx context.Context, ip string, since time.Time) (int64, error)
	ValidateApprovalToken(ctx context.Context, token string, now time.Time) (*TokenInfo, error)
	LogValidationAttempt(ctx context.Context, a Attempt) error
}

// EventKind classifies security events emitted by the gate.
type EventKind string

const (
	EventBlockedTemporary EventKind = "blocked_temporary"
	EventBlockedPermanent EventKind = "blocked_permanent"
	EventRateLimited      EventKind = "rate_limited"
	EventRepeatedFailures EventKind = "repeated_failures"
)

type SecurityEvent struct {
	Kind           EventKind
	IP             string
	UserAgent      string
	FailedAttempts int
	BlockedUntil   *time.Time
	OccurredAt     time.Time
}

// Notifier receives security events. Dispatch must not block and must not
// report errors back to the caller.
type Notifier interface {
	Dispatch(ev SecurityEvent)
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(SecurityEvent) {}

type Gate struct {
	store    Store
	notifier Notifier
	policy   Policy
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func New(store Store, notifier Notifier, policy Policy, opts ...Option) *Gate {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	g := &Gate{
		store:    store,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		log:      log.With().Str("component", "gate").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Policy() Policy { return g.policy }

// Validate runs one request through the gate: block check, burst limit,
// token validation, attempt logging and failure escalation, in that order.
// Every call writes exactly one attempt, except when the store itself fails
// to write it.
func (g *Gate) Validate(ctx context.Context, req Request) (res Result) {
	started := time.Now()
	now := g.now()
	attempt := Attempt{
		IP:          req.IP,
		TokenPrefix: TokenPrefix(req.Token),
		UserAgent:   req.UserAgent,
		AttemptedAt: now,
	}
	// recorded is set before each write so a panicking write is not retried.
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("ip", req.IP).Msg("token validation panicked")
			if !recorded {
				g.recordAfterPanic(ctx, attempt)
			}
			res = internalErrorResult()
		}
		metrics.RecordGateOutcome(string(res.Kind), time.Since(started))
	}()

	logger := g.log.With().Str("ip", req.IP).Str("token", attempt.TokenPrefix).Logger()
	logger.Info().Msg("token validation attempt")

	block, err := g.store.IsIPBlocked(ctx, req.IP, now)
	if err != nil {
		metrics.RecordStoreError("is_ip_blocked")
		logger.Error().Err(err).Msg("block check failed")
		g.recordOnce(ctx, logger, attempt, &recorded)
		return internalErrorResult()
	}
	if block.Blocked {
		logger.Warn().Bool("permanent", block.Permanent).Int("failed_attempts", block.FailedAttempts).Msg("ip blocked")
		g.recordOnce(ctx, logger, attempt, &recorded)
		kind := EventBlockedTemporary
		if block.Permanent {
			kind = EventBlockedPermanent
		}
		g.notifier.Dispatch(SecurityEvent{
			Kind:           kind,
			IP:             req.IP,
			UserAgent:      req.UserAgent,
			FailedAttempts: block.FailedAttempts,
			BlockedUntil:   block.BlockedUntil,
			OccurredAt:     now,
		})
		return g.blockedResult(req.IP, block)
	}

	recent, err := g.store.CountAttempts(ctx, req.IP, now.Add(-g.policy.BurstWindow))
	if err != nil {
		metrics.RecordStoreError("count_attempts")
		logger.Error().Err(err).Msg("counting recent attempts failed")
	} else if recent >= int64(g.policy.BurstLimit) {
		logger.Warn().Int64("recent_attempts", recent).Msg("rate limit exceeded")
		g.recordOnce(ctx, logger, attempt, &recorded)
		g.notifier.Dispatch(SecurityEvent{
			Kind:           EventRateLimited,
			IP:             req.IP,
			UserAgent:      req.UserAgent,
			FailedAttempts: int(recent),
			OccurredAt:     now,
		})
		return g.rateLimitedResult(req.IP)
	}

	info, err := g.store.ValidateApprovalToken(ctx, req.Token, now)
	if err != nil && !errors.Is(err, ErrTokenInvalid) {
		metrics.RecordStoreError("validate_approval_token")
		logger.Error().Err(err).Msg("token validation failed")
		g.recordOnce(ctx, logger, attempt, &recorded)
		return internalErrorResult()
	}
	attempt.Success = err == nil && info != nil

	logged := g.recordOnce(ctx, logger, attempt, &recorded)

	if !attempt.Success {
		failed := g.failuresInWindow(ctx, logger, req.IP, now, logged, block)
		logger.Info().Int("failed_attempts", failed).Msg("invalid token")
		if g.policy.TierFor(failed) != TierNone {
			g.notifier.Dispatch(SecurityEvent{
				Kind:           EventRepeatedFailures,
				IP:             req.IP,
				UserAgent:      req.UserAgent,
				FailedAttempts: failed,
				OccurredAt:     now,
			})
		}
		return g.invalidTokenResult(failed)
	}

	logger.Info().Str("client", info.ClientSlug).Msg("token validated")
	return successResult(info)
}

// failuresInWindow counts failures in the escalation window including the
// attempt just handled. When that attempt could not be logged it is added
// to the count so the number shown stays inclusive. If the count itself
// fails, the failures seen by the block check stand in for it.
func (g *Gate) failuresInWindow(ctx context.Context, logger zerolog.Logger, ip string, now time.Time, logged bool, block BlockState) int {
	n, err := g.store.CountFailedAttempts(ctx, ip, now.Add(-g.policy.EscalationWindow))
	if err != nil {
		metrics.RecordStoreError("count_failed_attempts")
		logger.Error().Err(err).Msg("counting failed attempts failed")
		return block.FailedAttempts + 1
	}
	failed := int(n)
	if !logged {
		failed++
	}
	return failed
}

func (g *Gate) recordOnce(ctx context.Context, logger zerolog.Logger, a Attempt, recorded *bool) bool {
	*recorded = true
	return g.record(ctx, logger, a)
}

// recordAfterPanic logs the attempt of a request that panicked before its
// attempt was written.
func (g *Gate) recordAfterPanic(ctx context.Context, a Attempt) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("ip", a.IP).Msg("logging validation attempt panicked")
		}
	}()
	g.record(ctx, g.log.With().Str("ip", a.IP).Logger(), a)
}

func (g *Gate) record(ctx context.Context, logger zerolog.Logger, a Attempt) bool {
	if err := g.store.LogValidationAttempt(ctx, a); err != nil {
		metrics.RecordStoreError("log_validation_attempt")
		logger.Error().Err(err).Msg("logging validation attempt failed")
		return false
	}
	return true
}
