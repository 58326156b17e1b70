package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/nkiryanov/checkout/internal/clock"
)

// RedisStore shares access tokens between service instances
// Keys expire together with the token they hold
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
}

func NewRedisStore(client redis.UniversalClient, prefix string, clk clock.Clock) *RedisStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		clock:  clk,
	}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:paypal:token:%s", s.prefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (AccessToken, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AccessToken{}, ErrTokenNotFound
		}
		return AccessToken{}, fmt.Errorf("failed to get token: %w", err)
	}

	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return AccessToken{}, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, token AccessToken) error {
	ttl := token.ExpiresAt.Sub(s.clock.Now())

	// Already expired token is never useful, drop whatever is stored
	if ttl <= 0 {
		if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}
