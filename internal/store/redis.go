package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

// lastSeenTTL bounds how long a stale timestamp survives. A week is plenty:
// anything older reads as "long ago" either way.
const lastSeenTTL = 7 * 24 * time.Hour

// RedisStore persists last-seen timestamps so presence queries survive
// process restarts. The realtime core updates it on presence transitions.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func lastSeenKey(user realtime.UserID) string {
	return fmt.Sprintf("user:%s:last_seen", user)
}

// Touch records activity for a user.
func (s *RedisStore) Touch(ctx context.Context, user realtime.UserID, at time.Time) error {
	return s.client.Set(ctx, lastSeenKey(user), at.UTC().Format(time.RFC3339Nano), lastSeenTTL).Err()
}

// LastSeen returns the recorded timestamp, or ok=false when none exists.
func (s *RedisStore) LastSeen(ctx context.Context, user realtime.UserID) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, lastSeenKey(user)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt last-seen value for %s: %w", user, err)
	}
	return at, true, nil
}
