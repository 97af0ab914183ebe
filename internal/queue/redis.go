package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

const defaultKeyPrefix = "otodoki:queue"

// RedisStore keeps the queue in a Redis list of JSON tracks, with a set of
// queued IDs for de-duplication. It relies on the Manager to serialize writers.
type RedisStore struct {
	client  *redis.Client
	listKey string
	idsKey  string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis queue: ping %s: %w", addr, err)
	}
	return newRedisStore(client, keyPrefix), nil
}

func newRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:  client,
		listKey: keyPrefix + ":tracks",
		idsKey:  keyPrefix + ":ids",
	}
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue: llen: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Add(ctx context.Context, tracks []domain.Track, max int) (int, error) {
	added := 0
	for _, t := range tracks {
		if added >= max {
			break
		}
		payload, err := json.Marshal(t)
		if err != nil {
			return added, fmt.Errorf("redis queue: encode track %s: %w", t.ID, err)
		}
		isNew, err := s.client.SAdd(ctx, s.idsKey, t.ID).Result()
		if err != nil {
			return added, fmt.Errorf("redis queue: sadd: %w", err)
		}
		if isNew == 0 {
			continue
		}
		if err := s.client.RPush(ctx, s.listKey, payload).Err(); err != nil {
			_ = s.client.SRem(ctx, s.idsKey, t.ID).Err()
			return added, fmt.Errorf("redis queue: rpush: %w", err)
		}
		added++
	}
	return added, nil
}

func (s *RedisStore) Take(ctx context.Context, n int, exclude map[string]struct{}) ([]domain.Track, error) {
	out := make([]domain.Track, 0, n)
	for len(out) < n {
		raw, err := s.client.LPopCount(ctx, s.listKey, n-len(out)).Result()
		if errors.Is(err, redis.Nil) || (err == nil && len(raw) == 0) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("redis queue: lpop: %w", err)
		}

		ids := make([]any, 0, len(raw))
		for _, item := range raw {
			var t domain.Track
			if err := json.Unmarshal([]byte(item), &t); err != nil {
				continue
			}
			ids = append(ids, t.ID)
			if _, skip := exclude[t.ID]; skip {
				continue
			}
			out = append(out, t)
		}
		if len(ids) > 0 {
			if err := s.client.SRem(ctx, s.idsKey, ids...).Err(); err != nil {
				return out, fmt.Errorf("redis queue: srem: %w", err)
			}
		}
	}
	return out, nil
}

// Reset removes all queued tracks.
func (s *RedisStore) Reset(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.listKey)
		pipe.Del(ctx, s.idsKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis queue: reset: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
