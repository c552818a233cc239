package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/services"
	"github.com/aprovacriativos/backend/internal/utils"
)

const (
	defaultAttemptsLimit = 100
	maxAttemptsLimit     = 500
	defaultAlertsLimit   = 50
)

// BlockedIPs godoc
// @Summary List blocked IPs
// @Description Every IP currently blocked by the approval gate, most recent activity first
// @Tags Security
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Blocked IPs"
// @Failure 403 {object} simpleResponse
// @Failure 500 {object} simpleResponse
// @Router /admin/security/blocked-ips [get]
func (s *Server) BlockedIPs(c echo.Context) error {
	admin := currentAdmin(c)
	s.logAdminActivity(admin.ID, "ip_block", "view_blocked_ips", nil, c)

	blocked, err := s.Store.BlockedIPs(c.Request().Context(), s.now())
	if err != nil {
		log.Error().Err(err).Msg("listing blocked ips failed")
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to load blocked IPs"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    blocked,
		"total":   len(blocked),
	})
}

// RecentAttempts godoc
// @Summary List validation attempts
// @Tags Security
// @Produce json
// @Security BearerAuth
// @Param ip query string false "Filter by IP address"
// @Param limit query int false "Maximum rows" default(100)
// @Success 200 {object} map[string]interface{} "Attempts, newest first"
// @Failure 400 {object} simpleResponse
// @Failure 403 {object} simpleResponse
// @Router /admin/security/attempts [get]
func (s *Server) RecentAttempts(c echo.Context) error {
	ip := strings.TrimSpace(c.QueryParam("ip"))
	if ip != "" && ip != "unknown" && !utils.IsValidIP(ip) {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "Invalid IP address"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultAttemptsLimit
	}
	if limit > maxAttemptsLimit {
		limit = maxAttemptsLimit
	}

	attempts, err := s.Store.RecentAttempts(c.Request().Context(), ip, limit)
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("listing attempts failed")
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to load attempts"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    attempts,
	})
}

type unblockRequest struct {
	IPAddress string `json:"ip_address" example:"203.0.113.7" validate:"required"`
	Reason    string `json:"reason" example:"Client confirmed they mistyped the link"`
}

// UnblockIP godoc
// @Summary Unblock an IP
// @Description Clears every block the IP has earned so far. The attempt history is kept.
// @Tags Security
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body unblockRequest true "IP to clear"
// @Success 200 {object} map[string]interface{} "Clearance record"
// @Failure 400 {object} simpleResponse
// @Failure 403 {object} simpleResponse
// @Router /admin/security/unblock [post]
func (s *Server) UnblockIP(c echo.Context) error {
	var req unblockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "Invalid payload"})
	}
	req.IPAddress = strings.TrimSpace(req.IPAddress)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "ip_address is required"})
	}
	if req.IPAddress != "unknown" && !utils.IsValidIP(req.IPAddress) {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "Invalid IP address"})
	}

	admin := currentAdmin(c)
	clearance, err := s.Store.Unblock(c.Request().Context(), req.IPAddress, admin.Email, utils.SanitizeString(req.Reason), s.now())
	if err != nil {
		log.Error().Err(err).Str("ip", req.IPAddress).Msg("unblock failed")
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to unblock IP"})
	}
	log.Info().Str("ip", req.IPAddress).Str("cleared_by", admin.Email).Msg("ip unblocked")

	s.logAdminActivity(admin.ID, "ip_block", "unblock", map[string]any{
		"ip_address": req.IPAddress,
		"reason":     clearance.Reason,
	}, c)

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"message":   "IP unblocked",
		"clearance": clearance,
	})
}

// SecurityAlerts godoc
// @Summary List security alerts
// @Tags Security
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows" default(50)
// @Success 200 {object} map[string]interface{} "Alerts, newest first"
// @Failure 403 {object} simpleResponse
// @Router /admin/security/alerts [get]
func (s *Server) SecurityAlerts(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > maxAttemptsLimit {
		limit = defaultAlertsLimit
	}

	alerts, err := s.Store.Alerts(c.Request().Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("listing security alerts failed")
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to load alerts"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    alerts,
	})
}

type approvalLinkRequest struct {
	ClientID string `json:"client_id" example:"5d1f2c1e-6c1a-4a4e-9a0e-1c2b3d4e5f60" validate:"required"`
	Month    string `json:"month" example:"2026-10" validate:"required"`
}

// CreateApprovalLink godoc
// @Summary Issue an approval link
// @Description Creates a seven-day approval token for one client and month
// @Tags Approval
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body approvalLinkRequest true "Client and month"
// @Success 200 {object} map[string]interface{} "Approval link"
// @Failure 400 {object} simpleResponse
// @Failure 404 {object} simpleResponse
// @Router /approval-links [post]
func (s *Server) CreateApprovalLink(c echo.Context) error {
	var req approvalLinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "Invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "client_id and month are required"})
	}

	admin := currentAdmin(c)
	link, err := s.Links.Issue(c.Request().Context(), req.ClientID, req.Month, &admin.ID)
	switch {
	case errors.Is(err, services.ErrInvalidMonth):
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: err.Error()})
	case errors.Is(err, services.ErrClientNotFound):
		return c.JSON(http.StatusNotFound, simpleResponse{Success: false, Message: "Client not found"})
	case err != nil:
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("issuing approval link failed")
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to create approval link"})
	}

	s.logAdminActivity(admin.ID, "approval_token", "create", map[string]any{
		"client_id": link.ClientID,
		"month":     link.Month,
	}, c)

	return c.JSON(http.StatusOK, map[string]any{
		"success":         true,
		"token":           link.Token,
		"approval_url":    link.ApprovalURL,
		"expires_in_days": link.ExpiresInDays,
		"client_slug":     link.ClientSlug,
		"month":           link.Month,
	})
}
