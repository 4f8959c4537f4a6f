package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitscribe/pkg/logging"
)

const redisKeyPrefix = "gitscribe:token:"

// RedisTokenStore keeps tokens in redis so they survive restarts and can be
// shared across replicas. Expiry is delegated to redis TTLs.
type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokenStore connects to redis at url (redis://...) and verifies
// the connection. ttl bounds how long stored tokens live; tokens carrying
// an earlier ExpiresAt get the shorter TTL.
func NewRedisTokenStore(ctx context.Context, url string, ttl time.Duration) (*RedisTokenStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logging.Info("TokenStore", "Connected to redis token store at %s", opts.Addr)
	return &RedisTokenStore{client: client, ttl: ttl}, nil
}

func (s *RedisTokenStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisTokenStore) Put(ctx context.Context, sessionID string, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	ttl := s.ttl
	if !token.ExpiresAt.IsZero() {
		if until := time.Until(token.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(sessionID), data, ttl).Err()
}

func (s *RedisTokenStore) Get(ctx context.Context, sessionID string) (*Token, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	if token.IsExpired(tokenExpiryMargin) {
		_ = s.client.Del(ctx, s.key(sessionID)).Err()
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisTokenStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning tokens: %w", err)
	}
	return count, nil
}

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}
