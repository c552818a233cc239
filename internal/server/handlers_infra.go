package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health godoc
// @Summary Health check
// @Description Check the health status of the API and its dependencies
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Failure 503 {object} map[string]interface{} "Database unavailable"
// @Router /health [get]
func (s *Server) Health(c echo.Context) error {
	status := map[string]any{
		"success": true,
		"status":  "ok",
		"checks":  map[string]any{},
	}
	checks := status["checks"].(map[string]any)
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// Main DB
	if sqlDB, err := s.DB.DB(); err == nil {
		if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = map[string]any{"ok": false, "error": err.Error()}
			status["status"] = "down"
			status["success"] = false
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = map[string]any{"ok": true}
		}
	} else {
		checks["database"] = map[string]any{"ok": false, "error": "db handle unavailable"}
		status["status"] = "down"
		status["success"] = false
		code = http.StatusServiceUnavailable
	}
	// Procedure pool (best-effort)
	if s.Pool != nil {
		if err := s.Pool.Ping(ctx); err != nil {
			checks["procedures"] = map[string]any{"ok": false, "error": err.Error()}
			degrade(status)
		} else {
			checks["procedures"] = map[string]any{"ok": true}
		}
	}
	// Redis (best-effort)
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = map[string]any{"ok": false, "error": err.Error()}
			degrade(status)
		} else {
			checks["redis"] = map[string]any{"ok": true}
		}
	}
	return c.JSON(code, status)
}

func degrade(status map[string]any) {
	if status["status"] == "ok" {
		status["status"] = "degraded"
	}
}
