package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/utils"
)

// JWTMiddleware validates JWT tokens and sets admin context
func (s *Server) JWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Authorization header required"})
			}

			// Extract token from "Bearer <token>"
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Invalid authorization header format"})
			}

			tokenString := tokenParts[1]
			claims, err := utils.ValidateJWT(tokenString, s.Cfg.JWTSecret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Invalid or expired token"})
			}

			// The session token is cleared on logout.
			var admin models.AdminUser
			if err := s.DB.Where("id = ? AND session_token = ?", claims.UserID, tokenString).First(&admin).Error; err != nil {
				return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Session expired or invalid"})
			}

			c.Set("admin", &admin)
			c.Set("admin_id", claims.UserID)
			c.Set("admin_email", claims.Email)

			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("component", "http").
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

func rateLimit(perSecond int) rate.Limit {
	return rate.Limit(perSecond)
}
