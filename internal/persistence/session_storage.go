package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "gateway:session:"

// SessionStorage implements fiber.Storage on Redis for the cookie scheme.
// Keys are namespaced so Reset only touches session data.
type SessionStorage struct {
	client  *redis.Client
	timeout time.Duration
}

var _ fiber.Storage = (*SessionStorage)(nil)

// NewSessionStorage wraps an existing client; the client stays owned by the caller.
func NewSessionStorage(r *Redis) (*SessionStorage, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("redis client not configured")
	}
	return &SessionStorage{client: r.Client, timeout: 2 * time.Second}, nil
}

// Get returns nil, nil when the key does not exist.
func (s *SessionStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}
	return val, nil
}

// Set stores val; a zero exp keeps the key without expiry.
func (s *SessionStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, sessionKeyPrefix+key, val, exp).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", key, err)
	}
	return nil
}

func (s *SessionStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Del(ctx, sessionKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Reset removes every session key.
func (s *SessionStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Close is a no-op; the Redis wrapper closes the client.
func (s *SessionStorage) Close() error {
	return nil
}

func (s *SessionStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
