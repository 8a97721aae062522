package orchestrator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebridge/pkg/utils"
)

// CapLimiter bounds concurrent outbound calls per company.
type CapLimiter interface {
	Acquire(ctx context.Context, companyID string) (bool, error)
	Release(ctx context.Context, companyID string) error
}

// RedisCapLimiter enforces the cap across process replicas with an atomic
// redis counter. The TTL bounds leaked slots after a crash.
type RedisCapLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCapLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisCapLimiter {
	return &RedisCapLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func capKey(companyID string) string {
	return "calls:cap:" + companyID
}

func (l *RedisCapLimiter) Acquire(ctx context.Context, companyID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(companyID), l.limit, l.ttl)
}

func (l *RedisCapLimiter) Release(ctx context.Context, companyID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(companyID))
}

// NoopLimiter never rejects. Used when no shared counter is available.
type NoopLimiter struct{}

func (NoopLimiter) Acquire(ctx context.Context, companyID string) (bool, error) { return true, nil }
func (NoopLimiter) Release(ctx context.Context, companyID string) error         { return nil }
