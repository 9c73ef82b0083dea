// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the structured access logger. Call
// transcripts and search keywords routinely carry customer names, phone
// numbers and e-mail addresses, so request metadata is scrubbed before it is
// logged:
//
//   - request and response bodies are never logged
//   - emails, phone numbers and UUIDs are redacted from queries and headers
//   - sensitive headers (Authorization, Cookie, Set-Cookie, plus custom) are masked
//   - selected query parameters (e.g. the search keyword) are masked entirely
//
// RedactingLogger also attaches the request-scoped logger returned by
// LoggerFrom, carrying the request ID, method and route.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders:     []string{"X-Api-Key"},
//	    MaskQueryParams: []string{"q", "agent"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	redacted = "[REDACTED]"

	// maxQueryLogLength caps the logged query string, in bytes.
	maxQueryLogLength = 2048
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
//
// MaskQueryParams lists query parameter names whose values are replaced
// entirely rather than pattern-scrubbed.
type RedactOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs IDs, then emails, then phone numbers. The phone pattern is
// the loosest and must run last.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// redactQuery masks listed parameters and pattern-scrubs the rest. The raw
// query is processed pair by pair so that encoding is left untouched.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return raw
	}
	pairs := strings.Split(raw, "&")
	for i, p := range pairs {
		k, _, hasValue := strings.Cut(p, "=")
		if _, ok := mask[strings.ToLower(k)]; ok && hasValue {
			pairs[i] = k + "=" + redacted
			continue
		}
		pairs[i] = redact(p)
	}
	return truncate(strings.Join(pairs, "&"), maxQueryLogLength)
}

// truncate cuts s to at most max bytes on a rune boundary and marks the cut.
// A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func lowerSet(items []string, base ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items)+len(base))
	for _, h := range append(base, items...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// RedactingLogger returns a Gin middleware that logs HTTP requests and
// responses with sensitive values scrubbed.
//
// Level is INFO by default, WARN for 4xx, and ERROR for 5xx or when handlers
// recorded gin errors. Responses served from the pipeline cache carry their
// X-Cache result in the log line.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet(opts.MaskHeaders, "authorization", "cookie", "set-cookie")
	maskParams := lowerSet(opts.MaskQueryParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = redacted
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		l := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}
		if res := c.Writer.Header().Get("X-Cache"); res != "" {
			ev = ev.Str("cache", res)
		}

		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
