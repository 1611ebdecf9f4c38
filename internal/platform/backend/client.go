// Package backend is the HTTP client for the mapping REST backend that owns
// durable project and mapping state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrUnauthenticated is returned when no token is available or the
	// backend refuses the token.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrBackendUnavailable covers network failures and 5xx responses.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrNotFound          = errors.New("not found")
	ErrRejected          = errors.New("request rejected by backend")
)

// APIError describes a non-2xx backend response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

// Is classifies the status code into one of the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBackendUnavailable:
		return e.Status >= 500
	case ErrRejected:
		return e.Status >= 400 && e.Status < 500 &&
			e.Status != http.StatusUnauthorized &&
			e.Status != http.StatusForbidden &&
			e.Status != http.StatusNotFound
	}
	return false
}

// Client talks to the backend. The bearer token is passed explicitly on
// every call; the client holds no per-user state.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a backend client. A zero timeout defaults to 15s.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "backend").Logger(),
	}
}

// BaseURL returns the configured backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, token, method, path string, payload, out interface{}) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthenticated)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %v: %w", method, path, err, ErrBackendUnavailable)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("authorization", "Bearer ***").
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %v: %w", method, path, err, ErrMalformedResponse)
	}
	return nil
}
