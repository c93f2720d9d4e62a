package state

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "scwkeyring:state"

// RedisStore keeps the blob under one redis key.
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// DialRedisStore connects to addr; Close closes the connection.
func DialRedisStore(addr, key string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), key)
	s.owned = true
	return s, nil
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get keyring state")
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, blob []byte) error {
	if err := s.client.Set(ctx, s.key, blob, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to save keyring state")
	}
	return nil
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
