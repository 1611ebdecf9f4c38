package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes lists routes that work without a session: health checks,
// the login URL and session creation. Entries are either a path (any
// method) or "METHOD path".
var publicRoutes = map[string]bool{
	"/health":                     true,
	"/api/v1/health":              true,
	"/api/v1/auth/login-url":      true,
	"POST /api/v1/auth/session":   true,
	"DELETE /api/v1/auth/session": true,
}

// AuthSkipper returns true for requests that bypass RequireSession.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method and route path bypass the session
// check.
func IsPublicRoute(method, path string) bool {
	return publicRoutes[path] || publicRoutes[method+" "+path]
}
