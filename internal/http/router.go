// Package httpapi wires the HTTP transport (Gin) to the pipeline services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Transcript text never reaches logs or shared caches
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/call-intel-backend/docs"
	"github.com/tbourn/call-intel-backend/internal/config"
	"github.com/tbourn/call-intel-backend/internal/http/handlers"
	"github.com/tbourn/call-intel-backend/internal/http/middleware"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the routes are bound to.
type Deps struct {
	Transcripts handlers.TranscriptService
	Pipeline    handlers.PipelineService
	// Store backs the readiness probe; nil reports ready.
	Store Pinger
}

const (
	readyTimeout = 2 * time.Second
	// generationCost is the rate-limit charge of a request that may call the
	// text generator.
	generationCost = 5
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per API key/IP; probes exempt)
//  8. Gzip (search and digest payloads are large and repetitive)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction; search keywords and agent filters
	// may carry customer names
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{middleware.HeaderAPIKey},
		MaskQueryParams: []string{"q", "agent"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 2 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per API key/IP; generation routes cost more
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAPIKeyOrIP()).
		Skip("/health", "/ready", "/metrics").
		Cost(generationCost, joinPath(apiBase, "/calls/:id/analysis"), joinPath(apiBase, "/digests/:period"))
	r.Use(rl.Handler())

	// 8) Response compression; /metrics negotiates its own encoding
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// 9) CORS posture (safe defaults: allow all if none configured)
	corsHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderAPIKey}
	exposeHeaders := []string{"X-Request-ID", "X-Cache", "Content-Length"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS);
	// transcript routes are never cacheable
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStore:         false,
		EnablePolicy:    true,
		NoStorePrefixes: []string{joinPath(apiBase, "/calls/")},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/readiness
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := deps.Store.Ping(ctx); err != nil {
				handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "store unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Transcripts, deps.Pipeline)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Transcripts
		api.GET("/calls/transcripts", h.SearchTranscripts)
		api.GET("/calls/transcripts/recent", h.RecentTranscripts)
		api.GET("/calls/transcripts/count", h.CountTranscripts)
		api.GET("/calls/:id/transcript", h.GetTranscript)
		api.POST("/calls/:id/transcript", h.StoreTranscript)

		// Analysis
		api.POST("/calls/:id/analysis", h.AnalyseCall)

		// Digests
		api.GET("/digests/:period", h.GetDigest)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to the API base, treating "/" (or empty) as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
