// Package memcached backs the cache with memcached via bradfitz/gomemcache.
//
// Memcached limits keys to 250 bytes of printable, space-free ASCII. Keys
// that would violate the protocol are transparently replaced with a sha256
// hex digest, which keeps the store usable for hashed cache keys of any
// shape.
package memcached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	st "github.com/keyvern/memocache/store"
)

func init() {
	st.Register("memcached", func(cfg st.Config) (st.Store, error) {
		if c, ok := cfg.Client.(*memcache.Client); ok && c != nil {
			return New(Config{Client: c})
		}
		if len(cfg.Addrs) == 0 {
			return nil, errors.New("memcached store: no client and no addrs configured")
		}
		return New(Config{Client: memcache.New(cfg.Addrs...)})
	})
}

type Store struct {
	mc *memcache.Client
}

var _ st.Store = (*Store)(nil)

type Config struct {
	Client *memcache.Client
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("memcached store: nil client")
	}
	return &Store{mc: cfg.Client}, nil
}

func normalizeKey(key string) string {
	if len(key) <= 250 {
		ok := true
		for i := 0; i < len(key); i++ {
			if key[i] <= ' ' || key[i] == 0x7f {
				ok = false
				break
			}
		}
		if ok {
			return key
		}
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// memcached expirations are int32 seconds; past roughly 30 days the value is
// interpreted as an absolute timestamp, which the clamp below avoids.
func seconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	s := int64(ttl / time.Second)
	if s < 1 {
		s = 1
	}
	const thirtyDays = 60 * 60 * 24 * 30
	if s > thirtyDays {
		s = thirtyDays
	}
	return int32(s)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	it, err := s.mc.Get(normalizeKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it.Value, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	err := s.mc.Set(&memcache.Item{Key: normalizeKey(key), Value: value, Expiration: seconds(ttl)})
	return err == nil, err
}

func (s *Store) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	err := s.mc.Add(&memcache.Item{Key: normalizeKey(key), Value: value, Expiration: seconds(ttl)})
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	err := s.mc.Delete(normalizeKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetMany(_ context.Context, keys ...string) ([][]byte, error) {
	norm := make([]string, len(keys))
	for i, k := range keys {
		norm[i] = normalizeKey(k)
	}
	items, err := s.mc.GetMulti(norm)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, nk := range norm {
		if it, ok := items[nk]; ok {
			out[i] = it.Value
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	for k, v := range items {
		if ok, err := s.Set(ctx, k, v, ttl); err != nil || !ok {
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
	err := s.mc.FlushAll()
	return err == nil, err
}

// Incr/Decr require the counter to exist; memcached refuses to create one
// implicitly, so a missing key is seeded with the delta.
func (s *Store) Incr(_ context.Context, key string, delta int64) (int64, error) {
	nk := normalizeKey(key)
	nv, err := s.mc.Increment(nk, uint64(delta))
	if errors.Is(err, memcache.ErrCacheMiss) {
		if err := s.mc.Add(&memcache.Item{Key: nk, Value: []byte(strconv.FormatInt(delta, 10))}); err == nil {
			return delta, nil
		}
		nv, err = s.mc.Increment(nk, uint64(delta))
		return int64(nv), err
	}
	return int64(nv), err
}

func (s *Store) Decr(_ context.Context, key string, delta int64) (int64, error) {
	nv, err := s.mc.Decrement(normalizeKey(key), uint64(delta))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return 0, st.ErrNotSupported
	}
	return int64(nv), err
}

func (s *Store) Close(context.Context) error { return nil }
