// Package ratelimit throttles scoring requests per client with a token bucket.
// Batch endpoints charge one token per wallet through Charge.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/metrics"
)

// Config configures the limiter.
type Config struct {
	// RequestsPerMinute is the sustained refill rate per client.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultConfig allows one request per second with bursts of 10.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// PerSecond builds a config from a requests-per-second budget, allowing a
// burst of one second's worth of requests.
func PerSecond(rps int) Config {
	if rps < 1 {
		rps = 1
	}
	return Config{
		RequestsPerMinute: rps * 60,
		BurstSize:         rps,
		CleanupInterval:   time.Minute,
	}
}

// Limiter holds one token bucket per client key.
type Limiter struct {
	cfg      Config
	mu       sync.Mutex
	buckets  map[string]*bucket
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// New creates a limiter and starts its cleanup loop. Call Stop to end it.
func New(cfg Config) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-2 * time.Minute)
			for key, b := range l.buckets {
				if b.seen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key, or none if fewer than n are available.
// Requests for more than the burst size always fail.
func (l *Limiter) AllowN(key string, n int) bool {
	if n <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	burst := float64(l.cfg.BurstSize)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, seen: now}
		l.buckets[key] = b
	}

	rate := float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.seen).Seconds()*rate)
	b.seen = now

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// RetryAfter is the whole number of seconds until one token refills.
func (l *Limiter) RetryAfter() int {
	if l.cfg.RequestsPerMinute <= 0 {
		return 60
	}
	return int(math.Ceil(60 / float64(l.cfg.RequestsPerMinute)))
}

const contextKey = "ratelimit.limiter"

// Middleware charges one token per request, keyed by client IP, and makes
// the limiter available to Charge.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			l.reject(c)
			return
		}
		c.Set(contextKey, l)
		c.Next()
	}
}

// Charge takes n extra tokens from the caller's bucket, for handlers whose
// cost grows with the request. It writes the 429 and returns false when the
// bucket cannot cover n. Without the middleware it always succeeds.
func Charge(c *gin.Context, n int) bool {
	v, ok := c.Get(contextKey)
	if !ok {
		return true
	}
	l := v.(*Limiter)
	if l.AllowN(c.ClientIP(), n) {
		return true
	}
	l.reject(c)
	return false
}

func (l *Limiter) reject(c *gin.Context) {
	metrics.RateLimitedTotal.Inc()
	retry := l.RetryAfter()
	c.Header("Retry-After", strconv.Itoa(retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate_limit_exceeded",
		"message":     "Too many requests. Please slow down.",
		"retry_after": retry,
	})
}
