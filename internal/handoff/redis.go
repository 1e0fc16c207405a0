// Package handoff delivers finished run summaries to the persistence
// subsystem. The run engine itself never stores anything.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend-runtracker/internal/tracking"

	"github.com/redis/go-redis/v9"
)

// SummaryList is the Redis list the persistence workers pop from.
const SummaryList = "runs:summaries"

var ErrNoClient = errors.New("handoff: redis client not configured")

// RedisSink pushes each summary as JSON onto SummaryList.
type RedisSink struct {
	rdb *redis.Client
	key string
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb, key: SummaryList}
}

func (s *RedisSink) Deliver(ctx context.Context, summary tracking.RunSummary) error {
	if s.rdb == nil {
		return ErrNoClient
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", summary.ID, err)
	}
	if err := s.rdb.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("push summary %s: %w", summary.ID, err)
	}
	return nil
}

// Pending reports how many summaries wait for persistence.
func (s *RedisSink) Pending(ctx context.Context) (int64, error) {
	if s.rdb == nil {
		return 0, ErrNoClient
	}
	return s.rdb.LLen(ctx, s.key).Result()
}
