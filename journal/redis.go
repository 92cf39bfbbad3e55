package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/meanrev/risk"
)

// DefaultLimitTTL keeps a limit snapshot past a long weekend.
const DefaultLimitTTL = 8 * 24 * time.Hour

// RedisLimitStore keeps DailyLimitState as one JSON value per account.
type RedisLimitStore struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

func NewRedisLimitStore(rdb redis.Cmdable, prefix, account string, ttl time.Duration) *RedisLimitStore {
	if prefix == "" {
		prefix = "meanrev"
	}
	if ttl <= 0 {
		ttl = DefaultLimitTTL
	}
	return &RedisLimitStore{rdb: rdb, key: LimitKey(prefix, account), ttl: ttl}
}

// LimitKey is the Redis key holding an account's limit state.
func LimitKey(prefix, account string) string {
	return prefix + ":limits:" + account
}

func (s *RedisLimitStore) Key() string { return s.key }

func (s *RedisLimitStore) Load(ctx context.Context) (risk.DailyLimitState, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return risk.DailyLimitState{}, false, nil
	}
	if err != nil {
		return risk.DailyLimitState{}, false, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var st risk.DailyLimitState
	if err := json.Unmarshal(raw, &st); err != nil {
		return risk.DailyLimitState{}, false, fmt.Errorf("decode limit state: %w", err)
	}
	return st, true, nil
}

func (s *RedisLimitStore) Save(ctx context.Context, st risk.DailyLimitState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
