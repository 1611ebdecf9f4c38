package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/internal/platform/backend"
	"github.com/kim/varmap/internal/platform/session"
)

// SessionView is the session as reported to the UI. The token is never
// echoed back.
type SessionView struct {
	ID                string        `json:"session_id"`
	User              *backend.User `json:"user,omitempty"`
	AuthSource        string        `json:"auth_source"`
	TokenExpiresAt    *time.Time    `json:"token_expires_at,omitempty"`
	Project           string        `json:"project,omitempty"`
	ProjectMeta       *project.Meta `json:"project_meta,omitempty"`
	SourceFilter      string        `json:"source_filter,omitempty"`
	Selected          int           `json:"selected"`
	UserRows          int           `json:"user_rows"`
	CustomGranularity bool          `json:"custom_granularity"`
	LastExportAt      *time.Time    `json:"last_export_at,omitempty"`
}

func viewOf(sess *session.Session) SessionView {
	return SessionView{
		ID:                sess.ID,
		User:              sess.User,
		AuthSource:        sess.AuthSource,
		TokenExpiresAt:    sess.TokenExpiresAt,
		Project:           sess.Project,
		ProjectMeta:       sess.ProjectMeta,
		SourceFilter:      string(sess.SourceFilter),
		Selected:          len(sess.Selection),
		UserRows:          len(sess.Overlay.Rows),
		CustomGranularity: sess.CustomGranularity,
		LastExportAt:      sess.LastExportAt,
	}
}

func (h *Handler) LoginURL(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"url": h.identity.LoginURL(h.opts.FrontendURL)})
}

type createSessionRequest struct {
	Token string `json:"token"`
}

// CreateSession exchanges the token handed back by the OAuth redirect (or
// an Authorization header) for a session. The user profile is fetched once
// here and cached in the session.
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	source := "callback"
	if req.Token == "" {
		tok, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: no access token")
		}
		req.Token, source = tok, "header"
	}

	now := h.now()
	info := auth.Inspect(req.Token)
	if info.ExpiresAt != nil && !now.Before(*info.ExpiresAt) {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: access token expired")
	}

	ctx := c.Request().Context()
	user, err := h.identity.Me(ctx, req.Token)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			return err
		}
		h.logger.Warn().Err(err).Msg("fetching user profile failed; continuing without it")
		user = nil
	}

	if old := auth.SessionID(c); old != "" {
		if err := h.sessions.Delete(ctx, old); err != nil {
			h.logger.Warn().Err(err).Msg("dropping previous session failed")
		}
	}

	sess := session.New(req.Token, source, now)
	sess.User = user
	sess.TokenExpiresAt = info.ExpiresAt
	if err := h.save(c, sess); err != nil {
		return err
	}
	auth.WithSession(c, sess)
	c.SetCookie(h.cookie(sess.ID, int(h.opts.SessionTTL.Seconds())))

	evt := h.logger.Info().Str("session_id", sess.ID).Str("auth_source", source)
	if user != nil {
		evt = evt.Str("user", user.Login)
	} else if info.Subject != "" {
		evt = evt.Str("subject", info.Subject)
	}
	evt.Msg("session created")
	return c.JSON(http.StatusCreated, viewOf(sess))
}

func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, viewOf(auth.FromContext(c)))
}

// DeleteSession logs out. It succeeds when no session exists.
func (h *Handler) DeleteSession(c echo.Context) error {
	if id := auth.SessionID(c); id != "" {
		if err := h.sessions.Delete(c.Request().Context(), id); err != nil {
			return err
		}
	}
	c.SetCookie(h.cookie("", -1))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
