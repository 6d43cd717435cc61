package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/pkg/logger"
	"github.com/nellyolofsson/wt2/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimitMiddleware provides a coarse fixed-window Redis-backed limiter
// shared by every replica. Each key may make floor(rps*window)+burst requests
// per window.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int64(rps*float64(windowSeconds)) + int64(burst)
	return func(c *gin.Context) {
		bucket := time.Now().Unix() / windowSeconds
		redisKey := fmt.Sprintf("rl:%s:%d", clientKey(c), bucket)

		ctx := c.Request.Context()
		cnt, err := client.Incr(ctx, redisKey).Result()
		if err != nil {
			logger.Errorw("rate limit check failed", logger.Fields{"key": redisKey, "error": err.Error()})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": http.StatusInternalServerError, "message": "Rate limit check failed"})
			return
		}
		if cnt == 1 {
			_ = client.Expire(ctx, redisKey, time.Duration(windowSeconds+1)*time.Second).Err()
		}
		if cnt > allowedPerWindow {
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			tooManyRequests(c, strconv.FormatInt(windowSeconds, 10))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
