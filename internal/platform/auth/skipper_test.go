package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/api/v1/health", true},
		{http.MethodGet, "/api/v1/auth/login-url", true},
		{http.MethodPost, "/api/v1/auth/session", true},
		{http.MethodDelete, "/api/v1/auth/session", true},
		{http.MethodGet, "/api/v1/auth/session", false},
		{http.MethodGet, "/api/v1/master", false},
		{http.MethodPost, "/api/v1/uploads", false},
	}
	for _, tt := range tests {
		if got := IsPublicRoute(tt.method, tt.path); got != tt.want {
			t.Errorf("IsPublicRoute(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestAuthSkipper_UsesRoutePath(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/session")
	if !AuthSkipper(c) {
		t.Error("expected session creation to skip auth")
	}
	c.SetPath("/api/v1/projects/:name")
	if AuthSkipper(c) {
		t.Error("expected project route to require auth")
	}
}
