package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/waitlist/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLimiter),
	fx.Provide(NewLockerFromClient),
)

// NewRedisClient returns nil when REDIS_ADDR is empty.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewLimiter(client *redis.Client, log *zap.Logger) Limiter {
	if client == nil {
		log.Warn("REDIS_ADDR not set, rate limits are enforced per instance")
		return NewMemoryLimiter()
	}
	return NewRedisLimiter(NewTokenBucket(client), "waitlist:ratelimit:")
}

func NewLockerFromClient(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return NewLocker(client)
}
