// Package handlers implements the public API on top of the transcript and
// pipeline services. Every error leaves through fail(), so clients always get
// an ErrorResponse with a stable code.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/call-intel-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"call not found"`
}

// fail aborts with an ErrorResponse. Server-side failures are logged:
// upstream failures (502, 503) at warn since the generator or the store is
// at fault, everything else >= 500 at error.
func fail(c *gin.Context, status int, code, msg string) {
	rid := middleware.RequestIDFrom(c)
	if rid == "" {
		rid = c.Writer.Header().Get("X-Request-ID")
	}

	if status >= http.StatusInternalServerError {
		lg := requestLogger(c)
		ev := lg.Error()
		if status == http.StatusBadGateway || status == http.StatusServiceUnavailable {
			ev = lg.Warn()
		}
		ev.Int("status", status).Str("code", code).Str("message", msg).Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: rid, Code: code, Message: msg})
}

// Fail is fail for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// accepted answers 202: the transcript was taken but parts of the write may
// have degraded.
func accepted(c *gin.Context, body any) {
	c.JSON(http.StatusAccepted, body)
}

// requestLogger is the request-scoped logger tagged with the route.
func requestLogger(c *gin.Context) zerolog.Logger {
	return middleware.LoggerFrom(c).With().Str("route", c.FullPath()).Logger()
}
