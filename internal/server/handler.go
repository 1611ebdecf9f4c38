// Package server exposes the mapping workflow as a JSON API. Every route
// except the public auth and health routes operates on the caller's
// session.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/platform/backend"
	"github.com/kim/varmap/internal/platform/session"
)

// Identity is the backend surface used to establish a session.
type Identity interface {
	Me(ctx context.Context, token string) (*backend.User, error)
	LoginURL(frontendURL string) string
}

// Options are the request-independent settings of the handlers.
type Options struct {
	FrontendURL  string
	SessionTTL   time.Duration
	SecureCookie bool
	UploadLimit  int64
}

type Handler struct {
	identity Identity
	projects *project.Service
	mappings *mapping.Service
	sessions session.Store
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewHandler(identity Identity, projects *project.Service, mappings *mapping.Service, sessions session.Store, opts Options, logger zerolog.Logger) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.UploadLimit <= 0 {
		opts.UploadLimit = 10 << 20
	}
	return &Handler{
		identity: identity,
		projects: projects,
		mappings: mappings,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/auth/login-url", h.LoginURL)
	api.POST("/auth/session", h.CreateSession)
	api.GET("/auth/session", h.GetSession)
	api.DELETE("/auth/session", h.DeleteSession)

	api.GET("/projects", h.ListProjects)
	api.POST("/projects", h.CreateProject)
	api.GET("/projects/:name", h.GetProject)
	api.POST("/session/project", h.SelectProject)
	api.PUT("/session/source-filter", h.SetSourceFilter)

	api.GET("/master", h.GetMaster)
	api.POST("/uploads", h.Upload)
	api.POST("/variables", h.AddVariable)
	api.POST("/projects/:name/mappings", h.CreateMapping)
	api.PUT("/projects/:name/mappings/:id", h.UpdateMapping)
	api.DELETE("/projects/:name/mappings/:id", h.DeleteMapping)

	api.GET("/tree", h.GetTree)
	api.PUT("/selection", h.SetSelection)

	api.GET("/granularity", h.GetGranularity)
	api.PUT("/granularity/mode", h.SetGranularityMode)
	api.POST("/granularity/duplicate", h.DuplicateGranularity)
	api.POST("/granularity/delete", h.DeleteGranularity)
	api.PATCH("/granularity/:id", h.UpdateGranularity)

	api.GET("/export", h.PreviewExport)
	api.GET("/export/download", h.DownloadExport)

	api.GET("/steps", h.GetSteps)
}

// -- helpers --

func (h *Handler) save(c echo.Context, sess *session.Session) error {
	sess.UpdatedAt = h.now().UTC()
	if err := h.sessions.Save(c.Request().Context(), sess); err != nil {
		h.logger.Error().Err(err).Str("session_id", sess.ID).Msg("saving session failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
	}
	return nil
}

func (h *Handler) master(c echo.Context, sess *session.Session) (mapping.MasterView, error) {
	return h.mappings.Master(c.Request().Context(), sess.Scope(), sess.Overlay)
}

// reconcile recomputes the master view and drops selections and custom
// granularity rows that no longer resolve to a row.
func (h *Handler) reconcile(c echo.Context, sess *session.Session) (mapping.MasterView, error) {
	view, err := h.master(c, sess)
	if err != nil {
		return view, err
	}
	sess.Reconcile(view.Keys())
	return view, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
