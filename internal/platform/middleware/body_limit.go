package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// UploadPath is the multipart upload route, which gets the upload limit.
const UploadPath = "/api/v1/uploads"

// BodyLimit caps request bodies at uploadBytes for POST UploadPath and at
// defaultBytes everywhere else. A declared Content-Length over the cap is
// refused up front; chunked bodies fail with *http.MaxBytesError once the
// handler reads past it.
func BodyLimit(defaultBytes, uploadBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			limit := defaultBytes
			if isUpload(req) {
				limit = uploadBytes
			}
			if req.ContentLength > limit {
				return TooLarge(limit)
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			return next(c)
		}
	}
}

func isUpload(req *http.Request) bool {
	return req.Method == http.MethodPost && strings.TrimSuffix(req.URL.Path, "/") == UploadPath
}

// TooLarge is the 413 returned for bodies over limit bytes.
func TooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", limit))
}
