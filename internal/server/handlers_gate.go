package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/utils"
)

const (
	maxUserAgentLen = 512
	maxBodyBytes    = 16 << 10

	kindTokenRequired gate.Kind = "TOKEN_REQUIRED"
)

type validateTokenRequest struct {
	Token string `json:"token" example:"3f9a1c..."`
}

// ValidateApprovalToken godoc
// @Summary Validate an approval token
// @Description Checks an approval token for the client approval page. Repeated failures from one IP escalate from warnings to a temporary and then a permanent block.
// @Tags Approval
// @Accept json
// @Produce json
// @Param request body validateTokenRequest true "Approval token"
// @Success 200 {object} gate.SuccessResponse
// @Failure 400 {object} gate.ErrorResponse
// @Failure 401 {object} gate.InvalidTokenResponse
// @Failure 429 {object} gate.RateLimitResponse
// @Failure 500 {object} gate.ErrorResponse
// @Router /validate-approval-token [post]
func (s *Server) ValidateApprovalToken(c echo.Context) error {
	var req validateTokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).Str("component", "gate").Msg("unreadable validation request body")
		res := gate.InternalError()
		return c.JSON(res.Status, res.Body)
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, gate.ErrorResponse{Error: kindTokenRequired, Message: "Token is required."})
	}

	ua := utils.Truncate(utils.SanitizeString(c.Request().UserAgent()), maxUserAgentLen)
	if ua == "" {
		ua = "unknown"
	}

	res := s.Gate.Validate(c.Request().Context(), gate.Request{
		IP:        gateClientIP(c),
		UserAgent: ua,
		Token:     req.Token,
	})
	if body, ok := res.Body.(gate.RateLimitResponse); ok {
		c.Response().Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	return c.JSON(res.Status, res.Body)
}
