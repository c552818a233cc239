package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aprovacriativos/backend/internal/gate"
)

// RPCStore delegates the gate's decisions to the SQL functions installed by
// db.InstallProcedures, so several services sharing one database agree on
// block state without sharing code.
type RPCStore struct {
	pool   *pgxpool.Pool
	policy gate.Policy
}

var _ gate.Store = (*RPCStore)(nil)

func NewRPCStore(pool *pgxpool.Pool, policy gate.Policy) *RPCStore {
	return &RPCStore{pool: pool, policy: policy}
}

func (s *RPCStore) IsIPBlocked(ctx context.Context, ip string, now time.Time) (gate.BlockState, error) {
	var st gate.BlockState
	var until *time.Time
	var failed int32
	err := s.pool.QueryRow(ctx,
		`SELECT blocked, permanent, blocked_until, failed_attempts FROM is_ip_blocked($1, $2, $3, $4, $5, $6)`,
		ip, now.UTC(),
		int(s.policy.EscalationWindow/time.Second),
		s.policy.MaxFailedAttempts,
		s.policy.TempBlockThreshold,
		int(s.policy.TempBlockDuration/time.Minute),
	).Scan(&st.Blocked, &st.Permanent, &until, &failed)
	if err != nil {
		return gate.BlockState{}, fmt.Errorf("is_ip_blocked: %w", err)
	}
	st.BlockedUntil = until
	st.FailedAttempts = int(failed)
	return st, nil
}

func (s *RPCStore) CountAttempts(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM token_validation_attempts WHERE ip_address = $1 AND attempted_at >= $2`,
		ip, since.UTC(),
	).Scan(&n)
	return n, err
}

func (s *RPCStore) CountFailedAttempts(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM token_validation_attempts a
		WHERE a.ip_address = $1 AND a.success = false AND a.attempted_at >= $2
		  AND a.attempted_at > coalesce(
		      (SELECT max(cleared_at) FROM ip_clearances WHERE ip_address = $1),
		      '-infinity'::timestamptz)`,
		ip, since.UTC(),
	).Scan(&n)
	return n, err
}

func (s *RPCStore) ValidateApprovalToken(ctx context.Context, token string, now time.Time) (*gate.TokenInfo, error) {
	if token == "" {
		return nil, gate.ErrTokenInvalid
	}
	var info gate.TokenInfo
	err := s.pool.QueryRow(ctx,
		`SELECT client_id, client_slug, client_name, month FROM validate_approval_token($1, $2)`,
		token, now.UTC(),
	).Scan(&info.ClientID, &info.ClientSlug, &info.ClientName, &info.Month)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gate.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("validate_approval_token: %w", err)
	}
	return &info, nil
}

func (s *RPCStore) LogValidationAttempt(ctx context.Context, a gate.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`SELECT log_validation_attempt($1, $2, $3, $4, $5)`,
		a.IP, a.TokenPrefix, a.Success, a.UserAgent, a.AttemptedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("log_validation_attempt: %w", err)
	}
	return nil
}
