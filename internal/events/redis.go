package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events on a per-company pub/sub channel that the UI
// gateway subscribes to.
type RedisSink struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb, clock: time.Now}
}

func (s *RedisSink) SetClock(clock func() time.Time) { s.clock = clock }

func channelFor(companyID string) string {
	return "events:" + companyID
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = s.clock().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, channelFor(ev.CompanyID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
