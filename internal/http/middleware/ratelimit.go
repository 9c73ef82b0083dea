// Rate limiting.
//
// RateLimiter is an in-memory token bucket per client identity. Routes that
// trigger text generation on a cache miss (analysis, digests) can be given a
// higher cost so one client cannot turn its whole budget into generator
// calls. Probes and metrics scrapes are exempt.
//
// The limiter is process-local; with several replicas each enforces its own
// share.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HeaderAPIKey identifies internal API clients (dashboards, schedulers).
const HeaderAPIKey = "X-API-Key"

const idleBucketTTL = 10 * time.Minute

type keyFunc func(*gin.Context) string

// KeyByAPIKeyOrIP keys buckets by API key when present and by client IP
// otherwise. The prefixes keep the two namespaces apart.
func KeyByAPIKeyOrIP() keyFunc {
	return func(c *gin.Context) string {
		if k := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); k != "" {
			return "key:" + k
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is safe for concurrent use. Configure it with Skip and Cost
// before installing Handler.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	skip map[string]struct{}
	cost map[string]int
}

// NewRateLimiter allows rps requests per second with the given burst
// (coerced to at least 1) per key.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
		skip:      make(map[string]struct{}),
		cost:      make(map[string]int),
	}
}

// Skip exempts route patterns (as registered with Gin) from limiting.
func (rl *RateLimiter) Skip(routes ...string) *RateLimiter {
	for _, p := range routes {
		rl.skip[p] = struct{}{}
	}
	return rl
}

// Cost charges n tokens per request on the given route patterns. n is capped
// at the burst so a single request can always eventually pass.
func (rl *RateLimiter) Cost(n int, routes ...string) *RateLimiter {
	n = max(1, min(n, rl.burst))
	for _, p := range routes {
		rl.cost[p] = n
	}
	return rl
}

// limiter returns the bucket for key. Idle buckets are swept at most once
// per idleBucketTTL, before the lookup so a stale bucket is replaced rather
// than refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= idleBucketTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= idleBucketTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Handler enforces the limits. A rejected request gets 429 with
// code "too_many_requests" and a Retry-After in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := rl.skip[route]; ok {
			c.Next()
			return
		}
		n := 1
		if w, ok := rl.cost[route]; ok {
			n = w
		}

		now := rl.now()
		res := rl.limiter(rl.keyFn(c), now).ReserveN(now, n)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}
		wait := time.Second
		if res.OK() {
			// a zero rate never refills; keep the fixed hint
			if d := res.DelayFrom(now); d != rate.InfDuration {
				wait = d
			}
			res.CancelAt(now)
		}

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
