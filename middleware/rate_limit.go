package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	limiters   = map[string]*rateLimiter{}
	limitersMu sync.Mutex
)

// RateLimitMiddleware applies a simple IP based rate limiter using a token bucket.
func RateLimitMiddleware() gin.HandlerFunc {
	cfg := config.Get()
	r := rate.Every(time.Minute / time.Duration(maxInt(cfg.RateLimitPerMinute, 1)))
	burst := maxInt(cfg.RateLimitPerMinute/2, 1)

	return func(ctx *gin.Context) {
		ip := ctx.ClientIP()
		limiter := getLimiter(ip, r, burst)

		limiter.mu.Lock()
		allowed := limiter.limiter.Allow()
		limiter.mu.Unlock()

		if !allowed {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// IdentifyQuota enforces a fixed-window per-user quota on identification
// requests via a Redis counter. Redis errors fail open so a cache outage
// never blocks identification. Must run after AuthRequired.
func IdentifyQuota() gin.HandlerFunc {
	cfg := config.Get()
	limit := cfg.IdentifyQuota
	window := time.Duration(cfg.IdentifyWindowSec) * time.Second

	return func(ctx *gin.Context) {
		if limit <= 0 {
			ctx.Next()
			return
		}

		userID, exists := ctx.Get(ContextUserIDKey)
		if !exists {
			utils.Error(ctx, 401, 40110, "unauthorized")
			ctx.Abort()
			return
		}

		windowSec := int64(window.Seconds())
		nowUnix := time.Now().Unix()
		bucket := nowUnix / windowSec
		key := "quota:identify:" + strconv.Itoa(int(userID.(uint))) + ":" +
			strconv.FormatInt(bucket, 10)

		rc := utils.GetRedis()
		rctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(rctx, key).Result()
		if err != nil {
			ctx.Next() // fail-open
			return
		}
		if n == 1 {
			_ = rc.Expire(rctx, key, window).Err()
		}
		if n > int64(limit) {
			// Seconds left in the current fixed window, not the window length.
			remaining := (bucket+1)*windowSec - nowUnix
			if remaining < 1 {
				remaining = 1
			}
			ctx.Header("Retry-After", strconv.FormatInt(remaining, 10))
			utils.Error(ctx, 429, 42902, "identification quota exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func getLimiter(key string, limit rate.Limit, burst int) *rateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	cleanupExpiredLimitersLocked()

	if limiter, ok := limiters[key]; ok {
		limiter.expires = time.Now().Add(5 * time.Minute)
		return limiter
	}

	limiter := &rateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		expires: time.Now().Add(5 * time.Minute),
	}
	limiters[key] = limiter
	return limiter
}

func cleanupExpiredLimitersLocked() {
	now := time.Now()
	for key, limiter := range limiters {
		if now.After(limiter.expires) {
			delete(limiters, key)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
