// Package apierr maps domain errors to HTTP responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/domain/tree"
	"github.com/kim/varmap/internal/platform/backend"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Body is the JSON error envelope.
type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var rules = []struct {
	target error
	status int
	code   string
}{
	{backend.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{mapping.ErrNoProject, http.StatusConflict, "no_project"},
	{mapping.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{granularity.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{project.ErrInvalid, http.StatusUnprocessableEntity, "validation_failed"},
	{mapping.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"},
	{mapping.ErrMalformedFile, http.StatusBadRequest, "malformed_file"},
	{granularity.ErrNotFound, http.StatusNotFound, "not_found"},
	{backend.ErrNotFound, http.StatusNotFound, "not_found"},
	{backend.ErrRejected, http.StatusBadRequest, "backend_rejected"},
	{backend.ErrBackendUnavailable, http.StatusBadGateway, "backend_unavailable"},
	{backend.ErrMalformedResponse, http.StatusBadGateway, "backend_unavailable"},
	{mapping.ErrDataUnavailable, http.StatusBadGateway, "backend_unavailable"},
	{tree.ErrPrecondition, http.StatusInternalServerError, "precondition_failed"},
}

// From classifies err. Unknown errors become 500 internal_error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &Error{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large",
			Err: fmt.Errorf("request body exceeds %d bytes", mbe.Limit)}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return &Error{Status: he.Code, Code: codeForStatus(he.Code), Err: fmt.Errorf("%v", he.Message)}
	}
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return &Error{Status: r.status, Code: r.code, Err: err}
		}
	}
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= 500 {
		return "internal_error"
	}
	return "request_failed"
}

func details(err error) interface{} {
	var mv *mapping.ValidationError
	if errors.As(err, &mv) {
		return mv
	}
	var gv *granularity.ValidationError
	if errors.As(err, &gv) {
		return gv
	}
	return nil
}

// Handler is an echo.HTTPErrorHandler writing Body envelopes. Server
// errors are logged at error level; messages of 500s are not exposed.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := From(err)
		msg := ae.Error()
		if ae.Status >= 500 {
			evt := logger.Error().Err(err).
				Str("code", ae.Code).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path)
			if rid, ok := c.Get("request_id").(string); ok {
				evt = evt.Str("request_id", rid)
			}
			evt.Msg("request failed")
			if ae.Status == http.StatusInternalServerError {
				msg = http.StatusText(ae.Status)
			}
		}
		body := Body{Error: Detail{Code: ae.Code, Message: msg, Details: details(err)}}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.Status)
		} else {
			werr = c.JSON(ae.Status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("writing error response")
		}
	}
}
