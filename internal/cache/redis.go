package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis, letting the server expire keys.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	closer func() error
}

// RedisConfig holds connection settings for NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return NewRedisStoreFromClient(rdb, cfg.Prefix, rdb.Close), nil
}

// NewRedisStoreFromClient wraps an existing client. closer may be nil.
func NewRedisStoreFromClient(client redis.Cmdable, prefix string, closer func() error) *RedisStore {
	if prefix == "" {
		prefix = "stockdash:series:"
	}
	return &RedisStore{client: client, prefix: prefix, closer: closer}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(err, "redis get")
	}
	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrap(r.client.Set(ctx, r.prefix+key, data, e.TTL).Err(), "redis set")
}

// DeleteExpired is a no-op: Redis expires keys itself.
func (r *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
