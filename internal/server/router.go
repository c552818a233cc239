package server

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"
	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/config"
	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/services"
	"github.com/aprovacriativos/backend/internal/store"
)

const gatePath = "/validate-approval-token"

type Server struct {
	DB    *gorm.DB
	Cfg   config.AppConfig
	Gate  *gate.Gate
	Store *store.GormStore
	Links *services.ApprovalLinkService
	Pool  *pgxpool.Pool
	Redis *redis.Client

	now func() time.Time
}

// Deps are the collaborators built by the caller. Pool and Redis are
// optional.
type Deps struct {
	DB    *gorm.DB
	Gate  *gate.Gate
	Store *store.GormStore
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// CustomValidator plugs go-playground/validator into echo's c.Validate.
type CustomValidator struct {
	Validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.Validator.Struct(i)
}

func New(e *echo.Echo, deps Deps, cfg config.AppConfig) *Server {
	if err := db.Migrate(deps.DB); err != nil {
		log.Error().Err(err).Msg("auto-migrate failed")
	}

	s := &Server{
		DB:    deps.DB,
		Cfg:   cfg,
		Gate:  deps.Gate,
		Store: deps.Store,
		Links: services.NewApprovalLinkService(deps.DB, cfg.PublicAppURL),
		Pool:  deps.Pool,
		Redis: deps.Redis,
		now:   time.Now,
	}

	e.Validator = &CustomValidator{Validator: validator.New()}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
	}))
	e.Use(middleware.Secure())
	if cfg.GlobalRateLimit > 0 {
		// The gate endpoint has its own burst limit and must log every request.
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == gatePath
			},
			Store: middleware.NewRateLimiterMemoryStore(rateLimit(cfg.GlobalRateLimit)),
		}))
	}

	// System
	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Public approval gate
	e.POST(gatePath, s.ValidateApprovalToken)

	// Admin auth (public)
	e.POST("/admin/login", s.AdminLogin)

	adminGroup := e.Group("/admin")
	adminGroup.Use(s.JWTMiddleware())
	adminGroup.Use(s.AdminMiddleware())
	adminGroup.POST("/logout", s.AdminLogout)
	adminGroup.GET("/profile", s.AdminProfile)

	// Security console
	adminGroup.GET("/security/blocked-ips", s.BlockedIPs)
	adminGroup.GET("/security/attempts", s.RecentAttempts)
	adminGroup.POST("/security/unblock", s.UnblockIP)
	adminGroup.GET("/security/alerts", s.SecurityAlerts)

	// Approval links
	links := e.Group("/approval-links")
	links.Use(s.JWTMiddleware())
	links.Use(s.AdminMiddleware())
	links.POST("", s.CreateApprovalLink)

	return s
}
