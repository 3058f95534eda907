package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"triageapp/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/reports", func(c *gin.Context) {
		c.Set(ActorKey, models.Actor{UserID: 1, Name: "alice"})
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Limit: 1}, nil)
	assert.False(t, rl.Enabled())

	router := rateLimitedRouter(rl)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/reports", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	rl := NewRateLimiter(client, RateLimitConfig{Limit: 1, Window: time.Minute}, nil)
	assert.True(t, rl.Enabled())

	w := httptest.NewRecorder()
	rateLimitedRouter(rl).ServeHTTP(w, httptest.NewRequest("POST", "/reports", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "rate limit check failed", w.Header().Get("X-RateLimit-Error"))
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{}, nil)
	assert.Equal(t, time.Hour, rl.config.Window)
	assert.Equal(t, "triage:rate_limit", rl.config.KeyPrefix)
}
