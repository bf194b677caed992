package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiters keys a token bucket per caller identity.
type limiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
}

func (l *limiters) get(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[identity] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (l *limiters) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// RateLimit returns token-bucket rate limiting per API key, or per client
// IP for unauthenticated callers. Identities idle for an hour are evicted.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	l := &limiters{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   max(1, cfg.Burst),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.evict(time.Now().Add(-time.Hour))
		}
	}()

	return func(c *gin.Context) {
		identity := c.GetString(APIKeyContext)
		if identity == "" {
			identity = "ip:" + c.ClientIP()
		}

		lim := l.get(identity)
		if !lim.Allow() {
			if cfg.RequestsPerSecond > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(1/cfg.RequestsPerSecond))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeRateLimited, Message: "rate limit exceeded, please slow down"},
			})
			return
		}
		c.Next()
	}
}
