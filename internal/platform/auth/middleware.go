package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/platform/session"
)

const (
	// SessionHeader carries the session id for API clients.
	SessionHeader = "X-Session-ID"
	// SessionCookie carries the session id for the browser UI.
	SessionCookie = "varmap_session"

	sessionKey = "session"
)

// SessionID reads the session id from the header, falling back to the
// cookie.
func SessionID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); id != "" {
		return id
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(ck.Value)
	}
	return ""
}

// RequireSession loads the caller's session and rejects requests without a
// usable bearer token with 401. Paths matched by AuthSkipper pass through.
func RequireSession(store session.Store, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			id := SessionID(c)
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: missing session")
			}

			sess, err := store.Get(c.Request().Context(), id)
			if errors.Is(err, session.ErrNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: session not found or expired")
			}
			if err != nil {
				logger.Error().Err(err).Msg("session lookup failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
			if sess.Token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: no access token")
			}
			if sess.Expired(time.Now()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated: access token expired")
			}

			c.Set(sessionKey, sess)
			return next(c)
		}
	}
}

// FromContext returns the session loaded by RequireSession.
func FromContext(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionKey).(*session.Session)
	return sess
}

// WithSession stores sess on c. Handlers that create sessions use it so
// downstream code sees the same value as after RequireSession.
func WithSession(c echo.Context, sess *session.Session) {
	c.Set(sessionKey, sess)
}
