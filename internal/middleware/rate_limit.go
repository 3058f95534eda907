package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Window is the time window for rate limiting
	Window time.Duration
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// KeyPrefix prefixes the Redis counter keys
	KeyPrefix string
}

// RateLimiter counts requests per user in fixed Redis windows. A nil client or a
// non-positive limit disables it; Redis errors let the request through.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	logger *observability.Logger
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(redisClient *redis.Client, config RateLimitConfig, logger *observability.Logger) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "triage:rate_limit"
	}
	return &RateLimiter{redis: redisClient, config: config, logger: logger, now: time.Now}
}

// Enabled reports whether requests are counted at all
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.redis != nil && rl.config.Limit > 0
}

// IsAllowed counts one request for key.
// Returns: allowed, remaining requests, reset time, error
func (rl *RateLimiter) IsAllowed(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowStart := rl.now().Truncate(rl.config.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", rl.config.KeyPrefix, key, windowStart.Unix())

	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := int(incrCmd.Val())
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.Limit, remaining, windowStart.Add(rl.config.Window), nil
}

// Middleware enforces the limit for the authenticated user. It must run after RequireAuth.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Enabled() {
			c.Next()
			return
		}
		actor, ok := CurrentActor(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		allowed, remaining, resetTime, err := rl.IsAllowed(c.Request.Context(), strconv.Itoa(actor.UserID))
		if err != nil {
			if rl.logger != nil {
				rl.logger.Warn(c.Request.Context(), "Rate limit check failed, allowing request", map[string]interface{}{
					"user_id":    actor.UserID,
					"key_prefix": rl.config.KeyPrefix,
					"error":      err.Error(),
				})
			}
			c.Header("X-RateLimit-Error", "rate limit check failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(resetTime.Sub(rl.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, contextutils.NewAppError(
				contextutils.ErrorCodeRateLimit,
				contextutils.SeverityWarn,
				"Rate limit exceeded",
				fmt.Sprintf("You have exceeded the rate limit of %d requests per %v", rl.config.Limit, rl.config.Window),
			).ToJSON())
			return
		}

		c.Next()
	}
}
