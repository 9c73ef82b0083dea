// Package config loads the service configuration from environment variables,
// applying defaults, normalization and validation. It covers the HTTP server,
// logging, the key-value store, cache TTLs, pipeline thresholds, the
// text-generation client, AMQP ingest and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	Environment string  // DEPLOY_ENV
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Driver        string // redis|sqlite
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBPath        string // SQLite path
	KeyPrefix     string
}

// TTLConfig holds cache lifetimes per record kind.
type TTLConfig struct {
	Transcript time.Duration
	Analysis   time.Duration
	Digest     time.Duration
}

// PipelineConfig holds analysis preconditions and digest batch limits.
type PipelineConfig struct {
	MinTranscriptRunes  int
	AnalysisMinDuration time.Duration
	DigestMinDuration   time.Duration
	DigestMaxCalls      int
	DigestConcurrency   int
	SearchScanLimit     int
	TimeZone            string
}

// LLMConfig configures the text-generation client.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	RPS       float64 // 0 disables client-side limiting
	Burst     int
}

// AMQPConfig configures the transcript ingest consumer. An empty URL
// disables ingest in the serve command.
type AMQPConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	Store    StoreConfig
	TTL      TTLConfig
	Pipeline PipelineConfig
	LLM      LLMConfig
	AMQP     AMQPConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		// digests can hold a request open for a full generator timeout
		WriteTimeout:   getdur("WRITE_TIMEOUT", 150*time.Second),
		IdleTimeout:    getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:   int64(getint("MAX_BODY_BYTES", 2<<20)),
		GinMode:        strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		Store: StoreConfig{
			Driver:        strings.ToLower(getenv("STORE_DRIVER", DriverRedis)),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			DBPath:        getenv("DB_PATH", "callintel.db"),
			KeyPrefix:     getenv("KEY_PREFIX", "callintel:"),
		},
		TTL: TTLConfig{
			Transcript: getdur("TRANSCRIPT_TTL", 90*24*time.Hour),
			Analysis:   getdur("ANALYSIS_TTL", 7*24*time.Hour),
			Digest:     getdur("DIGEST_TTL", 2*time.Hour),
		},
		Pipeline: PipelineConfig{
			MinTranscriptRunes:  getint("MIN_TRANSCRIPT_RUNES", 50),
			AnalysisMinDuration: getdur("ANALYSIS_MIN_DURATION", 120*time.Second),
			DigestMinDuration:   getdur("DIGEST_MIN_DURATION", 180*time.Second),
			DigestMaxCalls:      getint("DIGEST_MAX_CALLS", 20),
			DigestConcurrency:   getint("DIGEST_CONCURRENCY", 4),
			SearchScanLimit:     getint("SEARCH_SCAN_LIMIT", 500),
			TimeZone:            getenv("TIMEZONE", "UTC"),
		},
		LLM: LLMConfig{
			APIKey:    getenv("LLM_API_KEY", ""),
			BaseURL:   getenv("LLM_BASE_URL", ""),
			Model:     getenv("LLM_MODEL", ""),
			MaxTokens: getint("LLM_MAX_TOKENS", 4096),
			Timeout:   getdur("LLM_TIMEOUT", 90*time.Second),
			RPS:       getfloat("LLM_RPS", 1.0),
			Burst:     getint("LLM_BURST", 4),
		},
		AMQP: AMQPConfig{
			URL:      getenv("AMQP_URL", ""),
			Queue:    getenv("AMQP_QUEUE", "call_transcriptions"),
			Prefetch: getint("AMQP_PREFETCH", 8),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "call-intel-backend"),
			Environment: getenv("DEPLOY_ENV", "development"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Store.Driver == "sqlite3" {
		cfg.Store.Driver = DriverSQLite
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Location resolves the configured pipeline time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Pipeline.TimeZone)
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	if c.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if c.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}

	switch c.Store.Driver {
	case DriverRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("REDIS_ADDR must not be empty")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverRedis, DriverSQLite)
	}
	if c.TTL.Transcript <= 0 || c.TTL.Analysis <= 0 || c.TTL.Digest <= 0 {
		return errors.New("TTLs must be positive durations")
	}

	p := c.Pipeline
	if p.MinTranscriptRunes < 0 {
		return errors.New("MIN_TRANSCRIPT_RUNES must be >= 0")
	}
	if p.AnalysisMinDuration < 0 || p.DigestMinDuration < 0 {
		return errors.New("minimum call durations must be >= 0")
	}
	if p.DigestMaxCalls < 1 {
		return errors.New("DIGEST_MAX_CALLS must be >= 1")
	}
	if p.DigestConcurrency < 1 {
		return errors.New("DIGEST_CONCURRENCY must be >= 1")
	}
	if p.SearchScanLimit < 1 {
		return errors.New("SEARCH_SCAN_LIMIT must be >= 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	if c.LLM.MaxTokens < 1 {
		return errors.New("LLM_MAX_TOKENS must be >= 1")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("LLM_TIMEOUT must be > 0")
	}
	if c.LLM.RPS < 0 {
		return errors.New("LLM_RPS must be >= 0")
	}
	if c.LLM.RPS > 0 && c.LLM.Burst < 1 {
		return errors.New("LLM_BURST must be >= 1")
	}

	if c.AMQP.URL != "" {
		if strings.TrimSpace(c.AMQP.Queue) == "" {
			return errors.New("AMQP_QUEUE must not be empty")
		}
		if c.AMQP.Prefetch < 1 {
			return errors.New("AMQP_PREFETCH must be >= 1")
		}
	}

	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
