package gate

import (
	"errors"
	"fmt"
	"time"
)

// Policy holds the thresholds and windows of the gate. The burst window drives
// the short rate limit; the escalation window drives warnings and blocks.
type Policy struct {
	BurstWindow time.Duration
	BurstLimit  int

	EscalationWindow   time.Duration
	WarnThreshold      int
	TempWarnThreshold  int
	TempBlockThreshold int
	MaxFailedAttempts  int
	TempBlockDuration  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BurstWindow:        60 * time.Second,
		BurstLimit:         10,
		EscalationWindow:   time.Hour,
		WarnThreshold:      3,
		TempWarnThreshold:  5,
		TempBlockThreshold: 6,
		MaxFailedAttempts:  10,
		TempBlockDuration:  15 * time.Minute,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.BurstWindow <= 0 || p.EscalationWindow <= 0 || p.TempBlockDuration <= 0:
		return errors.New("gate policy: windows and durations must be positive")
	case p.BurstLimit <= 0:
		return errors.New("gate policy: burst limit must be positive")
	case p.WarnThreshold <= 0 || p.WarnThreshold > p.TempWarnThreshold:
		return fmt.Errorf("gate policy: warn threshold %d must be in 1..%d", p.WarnThreshold, p.TempWarnThreshold)
	case p.TempWarnThreshold >= p.TempBlockThreshold:
		return fmt.Errorf("gate policy: temporary block threshold %d must exceed the warning threshold %d", p.TempBlockThreshold, p.TempWarnThreshold)
	case p.TempBlockThreshold > p.MaxFailedAttempts:
		return fmt.Errorf("gate policy: temporary block threshold %d exceeds max failed attempts %d", p.TempBlockThreshold, p.MaxFailedAttempts)
	}
	return nil
}

// Tier is the warning level shown to a caller after a failed validation.
type Tier int

const (
	TierNone Tier = iota
	TierWarning
	TierTemporaryBlock
	TierPermanentBlock
)

func (t Tier) String() string {
	switch t {
	case TierWarning:
		return "warning"
	case TierTemporaryBlock:
		return "temporary_block"
	case TierPermanentBlock:
		return "permanent_block"
	default:
		return "none"
	}
}

// TierFor maps a failure count from the escalation window to a tier.
func (p Policy) TierFor(failed int) Tier {
	switch {
	case failed >= p.MaxFailedAttempts:
		return TierPermanentBlock
	case failed >= p.TempWarnThreshold:
		return TierTemporaryBlock
	case failed >= p.WarnThreshold:
		return TierWarning
	default:
		return TierNone
	}
}

func (p Policy) AttemptsRemaining(failed int) int {
	return max(0, p.MaxFailedAttempts-failed)
}

// BlockState is the block status of one IP, derived from its attempt log.
type BlockState struct {
	Blocked        bool
	Permanent      bool
	BlockedUntil   *time.Time
	FailedAttempts int
}

// EvaluateBlock derives the block state of an IP from the timestamps of its
// failed attempts, sorted ascending and limited to attempts after the IP's
// latest clearance.
//
// A permanent block exists once any escalation window in that history holds
// MaxFailedAttempts failures, so it never lifts by itself. A temporary block
// lasts TempBlockDuration after the last failure while the trailing window
// holds at least TempBlockThreshold failures.
func EvaluateBlock(failures []time.Time, now time.Time, p Policy) BlockState {
	var st BlockState
	windowStart := now.Add(-p.EscalationWindow)

	var last time.Time
	j := 0
	for i, f := range failures {
		if f.After(now) {
			break
		}
		for f.Sub(failures[j]) > p.EscalationWindow {
			j++
		}
		if i-j+1 >= p.MaxFailedAttempts {
			st.Permanent = true
		}
		if !f.Before(windowStart) {
			st.FailedAttempts++
			last = f
		}
	}

	if st.Permanent {
		st.Blocked = true
		return st
	}
	if st.FailedAttempts >= p.TempBlockThreshold {
		until := last.Add(p.TempBlockDuration)
		if now.Before(until) {
			st.Blocked = true
			st.BlockedUntil = &until
		}
	}
	return st
}

const tokenPrefixLen = 10

// TokenPrefix returns the loggable form of a token: its first ten characters
// followed by an ellipsis. Tokens of ten characters or fewer keep only their
// first half so the stored value is never the whole token.
func TokenPrefix(token string) string {
	r := []rune(token)
	n := tokenPrefixLen
	if len(r) <= n {
		n = len(r) / 2
	}
	return string(r[:n]) + "..."
}
