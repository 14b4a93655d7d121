package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/apmcore/internal/apm"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTimeout evicts per-client limiters not seen for this long
	IdleTimeout time.Duration
	// Tracer, when set, labels the active transaction of rejected requests
	Tracer *apm.Tracer
}

// DefaultRateLimitConfig returns the demo server's limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTimeout:       5 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per client IP
type limiterSet struct {
	cfg   RateLimitConfig
	now   func() time.Time
	mu    sync.Mutex
	byIP  map[string]*client
	sweep time.Time
}

func newLimiterSet(cfg RateLimitConfig, now func() time.Time) *limiterSet {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &limiterSet{cfg: cfg, now: now, byIP: make(map[string]*client), sweep: now()}
}

func (s *limiterSet) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.byIP[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.byIP[ip] = c
	}
	c.lastSeen = now

	if s.cfg.IdleTimeout > 0 && now.Sub(s.sweep) >= s.cfg.IdleTimeout {
		for key, other := range s.byIP {
			if now.Sub(other.lastSeen) >= s.cfg.IdleTimeout {
				delete(s.byIP, key)
			}
		}
		s.sweep = now
	}
	return c.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byIP)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(newLimiterSet(cfg, time.Now))
}

func rateLimit(set *limiterSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !set.allow(c.ClientIP()) {
			reject(c, set.cfg.Tracer)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			reject(c, cfg.Tracer)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, tracer *apm.Tracer) {
	if tracer != nil {
		tracer.CurrentTransaction(c.Request.Context()).SetLabel("rate_limited", "true")
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}
