package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/util"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket; defaults to the signed in user, then the IP
	KeyFunc func(c *gin.Context) string
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 100, Window: time.Minute}
}

// UploadRateLimitConfig returns limits for image uploads
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 20, Window: time.Minute}
}

// SearchRateLimitConfig returns limits for user search and catalog lookups
func SearchRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 60, Window: time.Minute}
}

func defaultKey(c *gin.Context) string {
	if uid := c.GetString(util.UserIDKey); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates the limiter behind RateLimit
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = defaultKey
	}
	return &RateLimiter{config: config, buckets: make(map[string]*bucket)}
}

// Allow reports whether key may proceed and, if not, how long to wait
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		every := rl.config.Window / time.Duration(rl.config.Limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), rl.config.Limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops buckets idle for longer than a window
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.Window)
	removed := 0
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Middleware returns the gin handler
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rl.Allow(rl.config.KeyFunc(c))
		if !ok {
			retryAfter := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			metrics.RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			util.RespondWithAPIError(c, errors.RateLimited("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// RateLimit returns an in-process limiter middleware
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	return NewRateLimiter(config).Middleware()
}
