// Package bigcache adapts allegro/bigcache. BigCache has one global life
// window instead of per-entry TTLs, so the ttl passed to Set is ignored;
// deploy it where a uniform expiry is acceptable.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	st "github.com/keyvern/memocache/store"
)

func init() {
	st.Register("bigcache", func(cfg st.Config) (st.Store, error) {
		life := cfg.DefaultTTL
		if life <= 0 {
			life = 5 * time.Minute
		}
		return New(Config{LifeWindow: life})
	})
}

type Store struct {
	c *bc.BigCache
}

var _ st.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	return true, s.c.Set(key, value)
}

func (s *Store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok, _ := s.Get(ctx, key); ok {
		return false, nil
	}
	return s.Set(ctx, key, value, ttl)
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	err := s.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok, err := s.Get(ctx, k); err != nil {
			return nil, err
		} else if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	for k, v := range items {
		if _, err := s.Set(ctx, k, v, ttl); err != nil {
			return false, err
		}
	}
	return true, nil
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
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Clear(_ context.Context) (bool, error) {
	err := s.c.Reset()
	return err == nil, err
}

func (s *Store) Incr(context.Context, string, int64) (int64, error) {
	return 0, st.ErrNotSupported
}

func (s *Store) Decr(context.Context, string, int64) (int64, error) {
	return 0, st.ErrNotSupported
}

func (s *Store) Close(context.Context) error {
	return s.c.Close()
}
