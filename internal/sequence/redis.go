package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "seq:"

// RedisStore keeps each counter in a plain key mutated with INCR.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

func (s *RedisStore) key(scope string) string {
	return s.prefix + scope
}

func (s *RedisStore) Increment(ctx context.Context, scope string) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(scope)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", scope, err)
	}
	return n, nil
}

func (s *RedisStore) Current(ctx context.Context, scope string) (int64, error) {
	val, err := s.client.Get(ctx, s.key(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", scope, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds non-integer %q", scope, val)
	}
	return n, nil
}

func (s *RedisStore) Set(ctx context.Context, scope string, value int64) error {
	if err := s.client.Set(ctx, s.key(scope), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", scope, err)
	}
	return nil
}
