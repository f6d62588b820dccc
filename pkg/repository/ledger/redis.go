package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

const trialKeyPrefix = "visitor_trial:"

// RedisTrials keeps visitor counters in redis so sessions survive a process
// restart. Updates use WATCH-based optimistic transactions; per-session
// atomicity comes from retrying on a concurrent write.
type RedisTrials struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTrials(rdb *redis.Client, ttl time.Duration) *RedisTrials {
	return &RedisTrials{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(rdb.Context()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisTrials) UpdateTrial(ctx context.Context, sessionID string, init func() *domain.VisitorTrial, apply func(*domain.VisitorTrial) error) (*domain.VisitorTrial, error) {
	key := trialKeyPrefix + sessionID
	var out *domain.VisitorTrial

	update := func(tx *redis.Tx) error {
		t := init()
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// lazily created counter
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			if err := json.Unmarshal(data, t); err != nil {
				return fmt.Errorf("decode trial: %w", err)
			}
		}

		if err := apply(t); err != nil {
			return err
		}

		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trial: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.ttl)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
		out = t
		return nil
	}

	for i := 0; i < 3; i++ {
		err := s.rdb.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis update: too many conflicts for %s", sessionID)
}
