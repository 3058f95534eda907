package database

import (
	"context"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis using the URL when set, else the address fields.
// Returns nil, nil when Redis is not configured; callers fall back to in-process alternatives.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to parse redis url")
		}
		opts = parsed
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, config.DefaultHTTPTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, contextutils.WrapError(err, "failed to connect to redis")
	}

	logger.Info(ctx, "Connected to Redis", map[string]interface{}{
		"addr": opts.Addr,
		"db":   opts.DB,
	})
	return client, nil
}
