// Package redis backs the cache with a Redis server via go-redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	st "github.com/keyvern/memocache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

func init() {
	st.Register("redis", func(cfg st.Config) (st.Store, error) {
		if c, ok := cfg.Client.(goredis.UniversalClient); ok && c != nil {
			return New(Config{Client: c, KeyPrefix: cfg.KeyPrefix})
		}
		if len(cfg.Addrs) == 0 {
			return nil, errors.New("redis store: no client and no addrs configured")
		}
		c := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: cfg.Addrs})
		return New(Config{Client: c, CloseClient: true, KeyPrefix: cfg.KeyPrefix})
	})
}

type Store struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ st.Store = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient
	// CloseClient should be true only when this store exclusively owns the
	// client.
	CloseClient bool
	// KeyPrefix scopes Clear: when set, Clear scans and deletes only keys
	// under the prefix instead of flushing the whole database.
	KeyPrefix string
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, prefix: cfg.KeyPrefix, closeClient: cfg.CloseClient}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // no expiry
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0
	}
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	return n > 0, err
}

func (s *Store) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		}
	}
	return out, nil
}

// SetMany pipelines one SET per entry so each key still carries its TTL
// (MSET cannot express per-key expiry).
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	if len(items) == 0 {
		return true, nil
	}
	if ttl <= 0 {
		ttl = 0
	}
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err == nil, err
}

func (s *Store) DeleteMany(ctx context.Context, continueOnError bool, keys ...string) ([]string, error) {
	deleted := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := s.Delete(ctx, k)
		if err != nil {
			if continueOnError {
				continue
			}
			return deleted, err
		}
		if ok {
			deleted = append(deleted, k)
		}
	}
	return deleted, nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Clear deletes keys under the configured prefix via SCAN, or flushes the
// database when no prefix is set.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	if s.prefix == "" {
		return true, s.rdb.FlushDB(ctx).Err()
	}
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 512).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 512 {
			if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
				return false, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return false, err
	}
	if len(batch) > 0 {
		if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, delta).Result()
}

func (s *Store) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.rdb.DecrBy(ctx, key, delta).Result()
}

// Close releases the underlying client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
