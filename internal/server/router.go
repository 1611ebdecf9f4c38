package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/config"
	"github.com/kim/varmap/internal/platform/apierr"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/internal/platform/middleware"
	"github.com/kim/varmap/internal/platform/session"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// HealthCheck probes one dependency. A non-nil error marks the service
// unhealthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewEcho builds the HTTP server: global middleware, health routes and the
// session-protected /api/v1 group with every handler route.
func NewEcho(cfg *config.Config, h *Handler, sessions session.Store, checks []HealthCheck, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierr.Handler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.SessionHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, echo.HeaderContentDisposition},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyBytes(), cfg.UploadBytes()))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	health := HealthHandler(checks)
	e.GET("/health", health)

	api := e.Group("/api/v1")
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
		rl.BurstSize = cfg.RateLimitBurst
	}
	// Buckets are keyed on the session only once RequireSession has loaded
	// it. Public routes and unknown ids share the client IP bucket.
	rl.KeyFunc = func(c echo.Context) string {
		if sess := auth.FromContext(c); sess != nil {
			return "session:" + sess.ID
		}
		return "ip:" + c.RealIP()
	}
	api.Use(auth.RequireSession(sessions, logger))
	api.Use(middleware.RateLimit(rl))
	api.GET("/health", health)

	h.RegisterRoutes(api)
	return e
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler runs every check with a short deadline. Any failure turns
// the response into 503.
func HealthHandler(checks []HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Version: Version}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				resp.Checks[hc.Name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[hc.Name] = "ok"
		}
		return c.JSON(status, resp)
	}
}
