// Package simple is an in-process map store for single-process deployments
// and tests. Expiry is enforced lazily on read; when the entry count passes
// the configured threshold, expired entries are pruned first and then every
// third remaining entry, so the map cannot grow without bound.
package simple

import (
	"context"
	"strconv"
	"sync"
	"time"

	st "github.com/keyvern/memocache/store"
)

func init() {
	st.Register("simple", func(cfg st.Config) (st.Store, error) {
		return New(Config{Threshold: cfg.Threshold}), nil
	})
}

type entry struct {
	v   []byte
	exp time.Time // zero => no expiry
}

type Store struct {
	mu        sync.RWMutex
	m         map[string]entry
	threshold int
}

var _ st.Store = (*Store)(nil)

type Config struct {
	// Threshold is the entry count that triggers pruning; 0 => 500.
	Threshold int
}

func New(cfg Config) *Store {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 500
	}
	if threshold < 0 {
		threshold = 0 // no cap
	}
	return &Store{m: make(map[string]entry), threshold: threshold}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	s.prune()
	s.m[key] = entry{v: value, exp: expiry(ttl)}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok && (e.exp.IsZero() || e.exp.After(now)) {
		return false, nil
	}
	s.prune()
	s.m[key] = entry{v: value, exp: expiry(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.m[key]
	delete(s.m, key)
	s.mu.Unlock()
	return ok, nil
}

func (s *Store) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, _ := s.Get(ctx, k)
		if ok {
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

func (s *Store) Has(_ context.Context, key string) (bool, error) {
	now := time.Now()
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return ok && (e.exp.IsZero() || e.exp.After(now)), nil
}

func (s *Store) Clear(_ context.Context) (bool, error) {
	s.mu.Lock()
	s.m = make(map[string]entry)
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(key, delta)
}

func (s *Store) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(key, -delta)
}

// adjust treats the stored value as a decimal ASCII integer, matching what
// networked stores do for their counters.
func (s *Store) adjust(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if e, ok := s.m[key]; ok && (e.exp.IsZero() || e.exp.After(time.Now())) {
		n, err := strconv.ParseInt(string(e.v), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	prev := s.m[key]
	s.m[key] = entry{v: []byte(strconv.FormatInt(cur, 10)), exp: prev.exp}
	return cur, nil
}

func (s *Store) Close(_ context.Context) error { return nil }

// prune assumes s.mu is held for writing.
func (s *Store) prune() {
	if s.threshold == 0 || len(s.m) < s.threshold {
		return
	}
	now := time.Now()
	i := 0
	for k, e := range s.m {
		expired := !e.exp.IsZero() && e.exp.Before(now)
		if expired || i%3 == 0 {
			delete(s.m, k)
		}
		i++
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
