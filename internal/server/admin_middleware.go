package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/models"
)

// AdminMiddleware checks if the admin has a console role
func (s *Server) AdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			admin, ok := c.Get("admin").(*models.AdminUser)
			if !ok || (admin.Role != "admin" && admin.Role != "super_admin") {
				return c.JSON(http.StatusForbidden, simpleResponse{Success: false, Message: "Admin access required"})
			}

			return next(c)
		}
	}
}

func currentAdmin(c echo.Context) *models.AdminUser {
	admin, _ := c.Get("admin").(*models.AdminUser)
	return admin
}

// logAdminActivity logs admin activities for audit trail
func (s *Server) logAdminActivity(adminID uint, entity, action string, details map[string]any, c echo.Context) {
	var metadata *string
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			m := string(raw)
			metadata = &m
		}
	}

	activity := models.ActivityLog{
		AdminID:   &adminID,
		Entity:    entity,
		Action:    action,
		Metadata:  metadata,
		IPAddress: s.getClientIP(c),
		UserAgent: c.Request().UserAgent(),
		CreatedAt: s.now().UTC(),
	}

	// The audit row must not hold up the response.
	go func() {
		if err := s.DB.Create(&activity).Error; err != nil {
			log.Error().Err(err).Str("entity", entity).Str("action", action).Msg("failed to log admin activity")
		}
	}()
}

// getClientIP extracts the client IP address from the request
func (s *Server) getClientIP(c echo.Context) string {
	ip := c.Request().Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Request().Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.RealIP()
	}

	// Handle comma-separated IPs (from proxies)
	if strings.Contains(ip, ",") {
		ips := strings.Split(ip, ",")
		ip = strings.TrimSpace(ips[0])
	}

	return ip
}

// gateClientIP is getClientIP without the socket fallback; the gate keys
// anonymous callers under "unknown".
func gateClientIP(c echo.Context) string {
	if xff := c.Request().Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Request().Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
