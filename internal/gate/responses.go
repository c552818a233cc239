package gate

import (
	"fmt"
	"net/http"
	"time"
)

// Kind is the error code returned in the "error" field of a gate response.
type Kind string

const (
	KindOK               Kind = ""
	KindInvalidToken     Kind = "INVALID_TOKEN"
	KindRateLimited      Kind = "RATE_LIMIT_EXCEEDED"
	KindBlockedTemporary Kind = "IP_BLOCKED_TEMPORARY"
	KindBlockedPermanent Kind = "IP_BLOCKED_PERMANENT"
	KindInternal         Kind = "INTERNAL_ERROR"
)

// Result is the HTTP status and JSON body produced for one gate call.
type Result struct {
	Status int
	Kind   Kind
	Body   any
}

type SuccessResponse struct {
	Success    bool   `json:"success" example:"true"`
	ClientID   string `json:"client_id"`
	ClientSlug string `json:"client_slug" example:"acme"`
	ClientName string `json:"client_name" example:"ACME"`
	Month      string `json:"month" example:"2026-10"`
}

type InvalidTokenResponse struct {
	Error                     Kind   `json:"error" example:"INVALID_TOKEN"`
	Message                   string `json:"message"`
	FailedAttempts            int    `json:"failed_attempts"`
	AttemptsRemaining         int    `json:"attempts_remaining"`
	ShowWarning               bool   `json:"show_warning"`
	ShowTemporaryBlockWarning bool   `json:"show_temporary_block_warning"`
	ShowPermanentBlockWarning bool   `json:"show_permanent_block_warning"`
}

type RateLimitResponse struct {
	Error             Kind   `json:"error" example:"RATE_LIMIT_EXCEEDED"`
	Message           string `json:"message"`
	IPAddress         string `json:"ip_address"`
	RetryAfter        int    `json:"retry_after" example:"60"`
	AttemptsRemaining int    `json:"attempts_remaining" example:"0"`
}

type BlockedTemporaryResponse struct {
	Error                Kind       `json:"error" example:"IP_BLOCKED_TEMPORARY"`
	Message              string     `json:"message"`
	IPAddress            string     `json:"ip_address"`
	BlockedUntil         *time.Time `json:"blocked_until"`
	FailedAttempts       int        `json:"failed_attempts"`
	BlockDurationMinutes int        `json:"block_duration_minutes" example:"15"`
}

type BlockedPermanentResponse struct {
	Error          Kind       `json:"error" example:"IP_BLOCKED_PERMANENT"`
	Message        string     `json:"message"`
	IPAddress      string     `json:"ip_address"`
	BlockedUntil   *time.Time `json:"blocked_until"`
	FailedAttempts int        `json:"failed_attempts"`
	ContactSupport bool       `json:"contact_support" example:"true"`
}

type ErrorResponse struct {
	Error   Kind   `json:"error" example:"INTERNAL_ERROR"`
	Message string `json:"message"`
}

func successResult(info *TokenInfo) Result {
	return Result{
		Status: http.StatusOK,
		Kind:   KindOK,
		Body: SuccessResponse{
			Success:    true,
			ClientID:   info.ClientID,
			ClientSlug: info.ClientSlug,
			ClientName: info.ClientName,
			Month:      info.Month,
		},
	}
}

func (g *Gate) invalidTokenResult(failed int) Result {
	tier := g.policy.TierFor(failed)
	msg := "Invalid or expired token."
	switch tier {
	case TierWarning:
		msg = "Invalid or expired token. Several failed attempts were detected and your access may be blocked. Please verify your credentials."
	case TierTemporaryBlock:
		if failed >= g.policy.TempBlockThreshold {
			msg = fmt.Sprintf("Invalid or expired token. Too many failed attempts: your IP is now blocked for %d minutes.", g.policy.minutesBlocked())
		} else {
			msg = fmt.Sprintf("Invalid or expired token. The next failed attempt will block your IP for %d minutes.", g.policy.minutesBlocked())
		}
	case TierPermanentBlock:
		msg = "Invalid or expired token. The maximum number of attempts has been reached."
	}
	return Result{
		Status: http.StatusUnauthorized,
		Kind:   KindInvalidToken,
		Body: InvalidTokenResponse{
			Error:                     KindInvalidToken,
			Message:                   msg,
			FailedAttempts:            failed,
			AttemptsRemaining:         g.policy.AttemptsRemaining(failed),
			ShowWarning:               tier == TierWarning,
			ShowTemporaryBlockWarning: tier == TierTemporaryBlock,
			ShowPermanentBlockWarning: tier == TierPermanentBlock,
		},
	}
}

func (g *Gate) rateLimitedResult(ip string) Result {
	secs := int(g.policy.BurstWindow / time.Second)
	return Result{
		Status: http.StatusTooManyRequests,
		Kind:   KindRateLimited,
		Body: RateLimitResponse{
			Error:             KindRateLimited,
			Message:           fmt.Sprintf("Too many attempts. Please wait %d seconds before trying again.", secs),
			IPAddress:         ip,
			RetryAfter:        secs,
			AttemptsRemaining: 0,
		},
	}
}

func (g *Gate) blockedResult(ip string, st BlockState) Result {
	if st.Permanent {
		return Result{
			Status: http.StatusTooManyRequests,
			Kind:   KindBlockedPermanent,
			Body: BlockedPermanentResponse{
				Error:          KindBlockedPermanent,
				Message:        "Your IP has been permanently blocked after repeated failed attempts. Please contact support.",
				IPAddress:      ip,
				BlockedUntil:   st.BlockedUntil,
				FailedAttempts: st.FailedAttempts,
				ContactSupport: true,
			},
		}
	}
	return Result{
		Status: http.StatusTooManyRequests,
		Kind:   KindBlockedTemporary,
		Body: BlockedTemporaryResponse{
			Error:                KindBlockedTemporary,
			Message:              "Your IP has been temporarily blocked after multiple failed attempts.",
			IPAddress:            ip,
			BlockedUntil:         st.BlockedUntil,
			FailedAttempts:       st.FailedAttempts,
			BlockDurationMinutes: g.policy.minutesBlocked(),
		},
	}
}

func internalErrorResult() Result {
	return Result{
		Status: http.StatusInternalServerError,
		Kind:   KindInternal,
		Body: ErrorResponse{
			Error:   KindInternal,
			Message: "Internal error while validating the token.",
		},
	}
}

// InternalError is the response for failures outside the gate itself, such as
// an unreadable request body.
func InternalError() Result { return internalErrorResult() }

func (p Policy) minutesBlocked() int {
	return int(p.TempBlockDuration / time.Minute)
}
