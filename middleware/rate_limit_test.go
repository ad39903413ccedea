package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/utils"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.SetForTesting(config.AppConfig{
		JWTSecret:          "unit-test-secret",
		RateLimitPerMinute: 2, // burst of 1
	})

	router := gin.New()
	router.Use(RateLimitMiddleware())
	router.GET("/ping", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"pong": true})
	})

	do := func(ip string) int {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	// The bucket holds one token; the second immediate request is rejected.
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestIdentifyQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	utils.SetRedisForTesting(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	config.SetForTesting(config.AppConfig{
		JWTSecret:         "unit-test-secret",
		IdentifyQuota:     3,
		IdentifyWindowSec: 60,
	})

	router := gin.New()
	router.POST("/identify",
		func(ctx *gin.Context) { ctx.Set(ContextUserIDKey, uint(42)) },
		IdentifyQuota(),
		func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"ok": true}) },
	)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/identify", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do().Code, "request %d should be within quota", i+1)
	}

	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "42902")

	// Retry-After reports the seconds left in the current fixed window,
	// which can never exceed the window length.
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)
}
