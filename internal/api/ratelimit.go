package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/toonranks/toonranks/internal/metrics"
)

const (
	rateLimitedCode   = "RATE_LIMITED"
	rateLimitedDetail = "Too many requests. Please slow down."
	visitorIdleTTL    = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP and route
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates an empty limiter set
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// allow takes a token from the bucket of key, creating it with perMinute capacity
func (rl *RateLimiter) allow(key string, perMinute int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorIdleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Limit allows perMinute requests per client IP on the route it is attached to
func (rl *RateLimiter) Limit(perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		route := c.Request.Method + " " + c.FullPath()
		if !rl.allow(route+"|"+c.ClientIP(), perMinute) {
			metrics.RateLimitedTotal.WithLabelValues(route).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":   rateLimitedCode,
				"detail": rateLimitedDetail,
			})
			return
		}
		c.Next()
	}
}
