package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyedLimiter creates a limiter allowing perSecond events per key with the given burst
func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether an event for key may happen now
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// RateLimitByParam throttles requests per value of a route parameter
func RateLimitByParam(limiter *KeyedLimiter, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Param(param)) {
			response.TooManyRequests(c, "too many scans for "+param+" "+c.Param(param))
			c.Abort()
			return
		}
		c.Next()
	}
}
