package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow limits requests per client with a fixed one-minute window
// kept in Redis, so the limit holds across process restarts and replicas.
type RedisFixedWindow struct {
	client *redis.Client
	limit  int
	prefix string
}

// NewRedisFixedWindow creates a limiter allowing perMinute requests per key.
func NewRedisFixedWindow(client *redis.Client, perMinute int, prefix string) *RedisFixedWindow {
	if prefix == "" {
		prefix = "otpattend:ratelimit"
	}
	return &RedisFixedWindow{client: client, limit: perMinute, prefix: prefix}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *RedisFixedWindow) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c.Request.Context(), ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// allow counts the request. Redis errors fail open: rate limiting is a
// protection layer, not a dependency worth refusing traffic over.
func (l *RedisFixedWindow) allow(ctx context.Context, key string) bool {
	windowKey := l.prefix + ":" + key + ":" + time.Now().UTC().Format("1504")
	count, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, windowKey, 2*time.Minute)
	}
	return count <= int64(l.limit)
}
