// Package ratelimit implements request budgets shared across instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidLimit  = errors.New("rate limit must be positive")
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter answers whether key may spend one request out of limit per window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// RedisLimiter shares budgets through Redis so every instance sees the same counts.
type RedisLimiter struct {
	bucket *TokenBucket
	prefix string
}

func NewRedisLimiter(bucket *TokenBucket, prefix string) *RedisLimiter {
	return &RedisLimiter{bucket: bucket, prefix: prefix}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	perSecond := float64(limit) / window.Seconds()
	return l.bucket.Allow(ctx, l.prefix+key, perSecond, limit)
}

const (
	memoryLimiterSize = 10000
	memoryLimiterTTL  = 15 * time.Minute
)

// MemoryLimiter keeps budgets in process. It is the fallback when Redis is
// not configured and only limits per instance.
type MemoryLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](memoryLimiterSize, nil, memoryLimiterTTL),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	every := rate.Every(window / time.Duration(limit))
	cacheKey := fmt.Sprintf("%s|%d|%s", key, limit, window)

	lim, ok := l.limiters.Get(cacheKey)
	if !ok {
		lim = rate.NewLimiter(every, limit)
		l.limiters.Add(cacheKey, lim)
	}

	now := l.now()
	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	res := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	perSecond := float64(every)
	if !allowed {
		res.RetryAfter = time.Duration((1 - tokens) / perSecond * float64(time.Second))
	}
	res.ResetAt = now.Add(time.Duration((float64(limit) - tokens) / perSecond * float64(time.Second)))
	return res, nil
}
