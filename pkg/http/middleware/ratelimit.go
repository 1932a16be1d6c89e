package middleware

import (
	"net/http"
	"sync"
	"time"

	"EffortLab/pkg/logger"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key. Each bucket holds up to Capacity
// tokens and refills at Refill tokens per second.
type Limiter struct {
	Capacity float64
	Refill   float64

	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func NewLimiter(capacity, refillPerSec float64) *Limiter {
	return &Limiter{Capacity: capacity, Refill: refillPerSec, m: make(map[string]*bucket), now: time.Now}
}

// Allow consumes one token for key if there is one.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.Capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.Capacity, b.tokens+elapsed*l.Refill)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimit rejects requests over the limit with 429. The key is the client
// IP plus the route template, so each route has its own budget.
func RateLimit(l *Limiter, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + ":" + c.Path()
			if !l.Allow(key) {
				log.Warn("rate limited", logger.String("remote", c.RealIP()), logger.String("route", c.Path()))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
