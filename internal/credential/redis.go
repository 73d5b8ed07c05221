package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the credential under a single key so separate CLI
// invocations share one login. The key expires with the token.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a store on an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "attendance:credential"
	}
	return &RedisStore{client: client, key: key}
}

// Load returns the stored credential.
func (s *RedisStore) Load(ctx context.Context) (Credential, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credential{}, fmt.Errorf("decode credential: %w", err)
	}
	return c, nil
}

// Save stores the credential until it expires.
func (s *RedisStore) Save(ctx context.Context, c Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !c.ExpiresAt.IsZero() {
		ttl = time.Until(c.ExpiresAt)
		if ttl <= 0 {
			return errors.New("credential already expired")
		}
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

// Clear deletes the stored credential.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
