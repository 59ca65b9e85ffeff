package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
)

// RedisStore keeps the checkpoint as a JSON value in Redis so that any
// host running the sync can resume it.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKey overrides the Redis key.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTTL expires an abandoned checkpoint after ttl. Zero keeps it forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore returns a store backed by client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, key: constants.DefaultCheckpointKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the checkpoint.
func (s *RedisStore) Key() string {
	return s.key
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, p Progress) error {
	data, err := json.Marshal(stamp(p))
	if err != nil {
		return errors.WrapParse("json", s.key, err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return errors.WrapResource("save", "checkpoint", s.key, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Progress, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.WrapResource("load", "checkpoint", s.key, err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapParse("json", s.key, err)
	}
	return &p, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.WrapResource("clear", "checkpoint", s.key, err)
	}
	return nil
}
