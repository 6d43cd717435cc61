package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimitMiddleware_Basic(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	r := gin.New()
	r.Use(RedisRateLimitMiddleware(client, 0.02, 0, time.Minute)) // one request per minute, no burst
	r.GET("/r", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, get(r, "/r"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	// the window key expires and the next request starts a fresh count
	m.FastForward(61 * time.Second)
	require.Equal(t, http.StatusOK, get(r, "/r"))
}

func TestRedisRateLimitMiddleware_RedisDown(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	m.Close()

	r := gin.New()
	r.Use(RedisRateLimitMiddleware(client, 1, 0, time.Second))
	r.GET("/r", func(c *gin.Context) { c.Status(200) })

	require.Equal(t, http.StatusInternalServerError, get(r, "/r"))
}

func TestRedisRateLimitMiddleware_NilClientFallsBack(t *testing.T) {
	r := gin.New()
	r.Use(RedisRateLimitMiddleware(nil, 0.5, 1, time.Second))
	r.GET("/r", func(c *gin.Context) { c.Status(200) })

	require.Equal(t, http.StatusOK, get(r, "/r"))
	require.Equal(t, http.StatusTooManyRequests, get(r, "/r"))
}
