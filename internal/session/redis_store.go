// Package session caches per-user account resolution in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no cached account exists for a user.
var ErrNotFound = errors.New("account not cached")

const DefaultAccountTTL = 10 * time.Minute

// AccountData is what is cached for a signed-in team member.
type AccountData struct {
	AccountID string    `json:"account_id"`
	Role      string    `json:"role"`
	CachedAt  time.Time `json:"cached_at"`
}

// RedisStore caches user-to-account resolution.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultAccountTTL
	}
	return &RedisStore{
		client: client,
		prefix: "account:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) SaveAccount(ctx context.Context, userID string, data AccountData) error {
	if data.CachedAt.IsZero() {
		data.CachedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal account data: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupAccount(ctx context.Context, userID string) (AccountData, error) {
	payload, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return AccountData{}, ErrNotFound
	}
	if err != nil {
		return AccountData{}, fmt.Errorf("lookup account: %w", err)
	}

	var data AccountData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return AccountData{}, fmt.Errorf("unmarshal account data: %w", err)
	}
	if data.AccountID == "" {
		return AccountData{}, ErrNotFound
	}
	return data, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
