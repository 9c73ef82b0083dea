// Package middleware holds the Gin middleware shared by every route.
//
// This file covers request correlation and panic handling:
//
//   - RequestID() gives every request a correlation ID, echoed in
//     X-Request-ID, in every log line and in error bodies.
//   - Recovery() turns panics into the standard internal_error envelope.
//   - LoggerFrom() returns the request-scoped logger attached by
//     RedactingLogger, for handlers that log outside the access line.
//
// Order: RequestID(), RedactingLogger(), Recovery().
package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxRequestIDLength = 64
)

// RequestID reuses the caller's X-Request-ID when it is well formed and
// mints a UUID otherwise. Client IDs end up in logs and response bodies, so
// only [A-Za-z0-9._-] up to 64 bytes is accepted.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch b := s[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.':
		default:
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation ID stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery logs a panic with its stack and answers 500 with the standard
// error envelope. The panic value is never sent to the client. When the
// handler already started writing, only the status is recorded.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger attached by RedactingLogger. Without it, the
// global logger is returned, tagged with the request ID when one is known.
// The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	ctx := log.With()
	if rid := RequestIDFrom(c); rid != "" {
		ctx = ctx.Str("request_id", rid)
	}
	l := ctx.Logger()
	return &l
}
