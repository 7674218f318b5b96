package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLeaseKey = "automation:scheduler"

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLease holds <key>:leader for one instance at a time and keeps the end of the
// last emitted window in <key>:cursor.
type RedisLease struct {
	client   redis.UniversalClient
	key      string
	instance string
	ttl      time.Duration
}

// NewRedisLease creates a lease that expires after ttl unless renewed. An empty key
// uses DefaultLeaseKey.
func NewRedisLease(client redis.UniversalClient, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}

	return &RedisLease{
		client:   client,
		key:      key,
		instance: uuid.New().String(),
		ttl:      ttl,
	}
}

func (l *RedisLease) Instance() string {
	return l.instance
}

func (l *RedisLease) leaderKey() string {
	return l.key + ":leader"
}

func (l *RedisLease) cursorKey() string {
	return l.key + ":cursor"
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, time.Time, error) {
	held, err := l.client.SetNX(ctx, l.leaderKey(), l.instance, l.ttl).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to acquire scheduler lease: %w", err)
	}

	if !held {
		renewed, err := renewScript.Run(ctx, l.client, []string{l.leaderKey()}, l.instance, l.ttl.Milliseconds()).Int()
		if err != nil {
			return false, time.Time{}, fmt.Errorf("failed to renew scheduler lease: %w", err)
		}

		if renewed == 0 {
			return false, time.Time{}, nil
		}
	}

	raw, err := l.client.Get(ctx, l.cursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		return true, time.Time{}, nil
	}

	if err != nil {
		return true, time.Time{}, fmt.Errorf("failed to read schedule cursor: %w", err)
	}

	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true, time.Time{}, fmt.Errorf("invalid schedule cursor %q: %w", raw, err)
	}

	return true, last, nil
}

func (l *RedisLease) Advance(ctx context.Context, now time.Time) error {
	return l.client.Set(ctx, l.cursorKey(), now.UTC().Format(time.RFC3339Nano), 0).Err()
}

func (l *RedisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.leaderKey()}, l.instance).Err()
}
