package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/pkg/metrics"
	"golang.org/x/time/rate"
)

type limiterStore struct {
	m     sync.Map // map[string]*rate.Limiter
	rps   float64
	burst int
}

// get returns (and lazily creates) a token-bucket limiter for the given key
func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

func tooManyRequests(c *gin.Context, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"status": http.StatusTooManyRequests, "message": "Rate limit exceeded"})
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// Requests are keyed by the authenticated subject when claims are present,
// otherwise by client IP. Each middleware instance keeps its own buckets.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !store.get(clientKey(c)).Allow() {
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			tooManyRequests(c, "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
