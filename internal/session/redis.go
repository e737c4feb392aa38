package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
)

const keyPrefix = "meme-minter:session:"

// kv is the subset of *redis.Client the store uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore shares sessions between processes. Entries expire after TTL
// when one is configured.
type RedisStore struct {
	client kv
	ttl    time.Duration
	close  func() error
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}

	logging.Component("session").Info("redis session store connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return newRedisStore(client, cfg.TTL, client.Close), nil
}

func newRedisStore(client kv, ttl time.Duration, closeFn func() error) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, close: closeFn}
}

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotConnected
		}
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Session{}, fmt.Errorf("parse session %s: %w", id, err)
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r.close != nil {
		return r.close()
	}
	return nil
}
