package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// hit sends one GET carrying the given session header through mw.
func hit(mw echo.MiddlewareFunc, sessionID string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/master", nil)
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	return rec, err
}

func bySession(c echo.Context) string { return c.Request().Header.Get("X-Session-ID") }

func TestRateLimit_BurstThenReject(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3, KeyFunc: bySession})

	for i := 0; i < 3; i++ {
		rec, err := hit(mw, "s1")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
			t.Errorf("X-RateLimit-Limit = %q", got)
		}
	}

	rec, err := hit(mw, "s1")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	secs, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || secs < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_SessionsHaveSeparateBuckets(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, KeyFunc: bySession})

	if _, err := hit(mw, "a"); err != nil {
		t.Fatalf("a#1: %v", err)
	}
	if _, err := hit(mw, "a"); err == nil {
		t.Fatal("a#2: expected 429")
	}
	if _, err := hit(mw, "b"); err != nil {
		t.Fatalf("b#1: %v", err)
	}
}

func TestRateLimit_DefaultKeyIsClientIP(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	// Different session headers from one address share the IP bucket.
	if _, err := hit(mw, "a"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := hit(mw, "b"); err == nil {
		t.Fatal("expected the shared IP bucket to be exhausted")
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 20 {
		t.Errorf("expected RequestsPerSecond 20, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 40 {
		t.Errorf("expected BurstSize 40, got %d", cfg.BurstSize)
	}
}

func TestRetryAfter_ZeroRate(t *testing.T) {
	l := rate.NewLimiter(0, 1)
	now := time.Now()
	l.AllowN(now, 1)
	if ra := retryAfter(l, now); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
}

func TestRateLimiterStore_ReusesAndSweeps(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
		IdleTTL:           time.Minute,
	}
	store := newRateLimiterStore(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	l1 := store.get("key1")
	if l1 == nil {
		t.Fatal("expected non-nil limiter")
	}
	if l2 := store.get("key1"); l1 != l2 {
		t.Error("expected same limiter instance for same key")
	}
	if l3 := store.get("key2"); l1 == l3 {
		t.Error("expected different limiter for different key")
	}

	now = now.Add(2 * time.Minute)
	store.get("key2")
	if n := store.sweep(); n != 1 {
		t.Errorf("sweep removed %d buckets, want 1", n)
	}
	if _, ok := store.buckets["key1"]; ok {
		t.Error("expected idle key1 to be swept")
	}
}
