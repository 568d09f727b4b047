// Package ristretto adapts dgraph-io/ristretto, a cost-aware in-process
// cache. Writes are admitted asynchronously and may be rejected under
// pressure, which Set reports as ok=false.
package ristretto

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	st "github.com/keyvern/memocache/store"
)

func init() {
	st.Register("ristretto", func(cfg st.Config) (st.Store, error) {
		n := int64(cfg.Threshold)
		if n <= 0 {
			n = 500
		}
		// counters sized at 10x expected entries per ristretto guidance
		return New(Config{NumCounters: n * 10, MaxCost: n, BufferItems: 64})
	})
}

type Store struct {
	c *rc.Cache

	// adjMu serializes Incr/Decr, which ristretto cannot do atomically.
	adjMu sync.Mutex
}

var _ st.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return s.c.Set(key, value, 1), nil
	}
	return s.c.SetWithTTL(key, value, 1, ttl), nil
}

func (s *Store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok, _ := s.Get(ctx, key); ok {
		return false, nil
	}
	return s.Set(ctx, key, value, ttl)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	_, existed, _ := s.Get(ctx, key)
	s.c.Del(key)
	return existed, nil
}

func (s *Store) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok, _ := s.Get(ctx, k); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	all := true
	for k, v := range items {
		ok, _ := s.Set(ctx, k, v, ttl)
		all = all && ok
	}
	// admission is async; make the writes visible to immediate readers
	s.c.Wait()
	return all, nil
}

// DeleteMany never fails on this engine, so continueOnError is moot.
func (s *Store) DeleteMany(ctx context.Context, _ bool, keys ...string) ([]string, error) {
	deleted := make([]string, 0, len(keys))
	for _, k := range keys {
		if ok, _ := s.Delete(ctx, k); ok {
			deleted = append(deleted, k)
		}
	}
	return deleted, nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, _ := s.Get(ctx, key)
	return ok, nil
}

func (s *Store) Clear(_ context.Context) (bool, error) {
	s.c.Clear()
	return true, nil
}

func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(ctx, key, delta)
}

func (s *Store) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(ctx, key, -delta)
}

// adjust is read-modify-write under a local mutex; single-process only,
// like the rest of this store.
func (s *Store) adjust(ctx context.Context, key string, delta int64) (int64, error) {
	s.adjMu.Lock()
	defer s.adjMu.Unlock()
	var cur int64
	if b, ok, _ := s.Get(ctx, key); ok {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	s.c.Set(key, []byte(strconv.FormatInt(cur, 10)), 1)
	s.c.Wait()
	return cur, nil
}

func (s *Store) Close(context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's own counters for applications that want them;
// not part of the store contract.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
