package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/platform/session"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func TestInspect_JWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := createTestToken(t, jwt.RegisteredClaims{
		Subject:   "jdoe",
		Issuer:    "https://login.example",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	info := Inspect(tok)
	if !info.JWT || info.Subject != "jdoe" || info.Issuer != "https://login.example" {
		t.Errorf("info = %+v", info)
	}
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, exp)
	}
}

func TestInspect_OpaqueToken(t *testing.T) {
	info := Inspect("opaque-token-value")
	if info.JWT || info.ExpiresAt != nil {
		t.Errorf("info = %+v", info)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

func newProtected(t *testing.T, store session.Store) (*echo.Echo, *session.Session) {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1", RequireSession(store, zerolog.Nop()))
	api.GET("/master", func(c echo.Context) error {
		sess := FromContext(c)
		if sess == nil {
			t.Error("session missing from context")
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, sess.ID)
	})
	api.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	sess := session.New("tok", "header", time.Now())
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return e, sess
}

func TestRequireSession(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	e, sess := newProtected(t, store)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"missing session", func(r *http.Request) {}, http.StatusUnauthorized},
		{"unknown session", func(r *http.Request) { r.Header.Set(SessionHeader, "nope") }, http.StatusUnauthorized},
		{"header", func(r *http.Request) { r.Header.Set(SessionHeader, sess.ID) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.ID}) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/master", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && rec.Body.String() != sess.ID {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestRequireSession_NoTokenOrExpired(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	e, sess := newProtected(t, store)

	sess.Token = ""
	_ = store.Save(context.Background(), sess)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/master", nil)
	req.Header.Set(SessionHeader, sess.ID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}

	sess.Token = "tok"
	past := time.Now().Add(-time.Minute)
	sess.TokenExpiresAt = &past
	_ = store.Save(context.Background(), sess)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expired: status = %d", rec.Code)
	}
}

func TestRequireSession_PublicRoute(t *testing.T) {
	e, _ := newProtected(t, session.NewMemoryStore(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
