package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
//
// NoStore marks every response uncacheable; NoStorePrefixes does so only for
// request paths under one of the prefixes (transcript routes carry customer
// conversations and must never sit in a shared cache). HSTS is sent only on
// HTTPS requests, directly or via X-Forwarded-Proto.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool
	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies

	NoStorePrefixes []string
}

type header struct{ key, value string }

// SecurityHeaders sets hardening headers for a JSON API. The static set is
// built once; per request only the cache and HSTS decisions are made.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			header{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			header{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range static {
			h.Set(kv.key, kv.value)
		}
		if opt.NoStore || hasAnyPrefix(c.Request.URL.Path, opt.NoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
