// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with per-client
// buckets and opportunistic garbage collection. It guards the generation
// endpoint, where every request costs store round trips.
//
// Notes:
//   - The limiter is process-local. Replicas each enforce their own budget.
//   - It is edge-level abuse control, not an authorization mechanism.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HeaderClientID lets trusted callers (e.g. an upstream app server sharing
// one egress IP) name their own bucket.
const HeaderClientID = "X-Client-ID"

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientOrIP keys buckets by X-Client-ID when present and by client IP
// otherwise. Keys are prefixed so the two namespaces cannot collide.
func KeyByClientOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := strings.TrimSpace(c.GetHeader(HeaderClientID)); id != "" {
			return "client:" + truncate(id, 128)
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter. Idle buckets
// are evicted after a TTL during lookups. It is safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	exempt   map[string]struct{}
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn. Burst values <= 0 are coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		exempt:   make(map[string]struct{}),
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Exempt skips limiting for the given request paths (e.g. /health, /metrics).
func (rl *RateLimiter) Exempt(paths ...string) *RateLimiter {
	for _, p := range paths {
		rl.exempt[p] = struct{}{}
	}
	return rl
}

// getVisitor returns (and updates) the limiter for key, creating it if absent.
// Every 5000 lookups it first evicts idle entries, so an old bucket can be
// dropped even when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns a Gin middleware that enforces per-key limits. Denied
// requests get 429 with Retry-After: 1 and the standard error envelope:
//
//	{ "request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		rateLimited.Inc()
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
