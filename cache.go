package memocache

import (
	"context"
	"crypto/sha256"
	"errors"
	"hash"
	"time"

	"github.com/keyvern/memocache/codec"
	"github.com/keyvern/memocache/store"
	_ "github.com/keyvern/memocache/store/null"
)

// TTL sentinels accepted wherever a time.Duration expiry is taken.
const (
	// TTLDefault defers to the cache-wide default expiry.
	TTLDefault time.Duration = 0
	// TTLForever stores the entry without expiry.
	TTLForever time.Duration = -1
	// TTLDelete removes the entry instead of writing it. Only fragment
	// helpers honor it; everywhere else it behaves like TTLForever.
	TTLDelete time.Duration = -2
)

// Config configures a Cache. The zero value plus a Type (or Store) is
// usable; everything else has a sensible default.
type Config struct {
	// Type selects a registered backend by tag ("simple", "redis", ...).
	// Ignored when Store is set. Defaults to "null", which caches nothing.
	Type string

	// Store injects a ready backend directly, bypassing the registry.
	Store store.Store

	// Backend is passed to the backend factory when Type is used.
	Backend store.Config

	// DefaultTTL applies to writes that pass TTLDefault. Defaults to
	// 5 minutes.
	DefaultTTL time.Duration

	// KeyPrefix namespaces every key this cache touches, letting several
	// applications share one backend. Defaults to "memocache_".
	KeyPrefix string

	// Hash constructs the digest used for key derivation. Defaults to
	// sha256.New.
	Hash func() hash.Hash

	// SourceCheck embeds per-function source fingerprints into memoized
	// keys so deployments with changed code never serve stale results.
	SourceCheck bool

	// IgnoreErrors makes DeleteMany press on past per-key failures.
	IgnoreErrors bool

	// Debug re-raises backend errors from memoized calls instead of
	// degrading to a direct call. Leave off in production.
	Debug bool

	// SuppressNullWarning silences the startup warning emitted when the
	// null backend is selected implicitly.
	SuppressNullWarning bool

	Logger Logger
	Hooks  Hooks
}

// Cache is the facade every feature goes through: plain key/value access
// here, memoization and view caching in Memoize and NewView. All methods
// are safe for concurrent use if the underlying Store is.
type Cache struct {
	store       store.Store
	prefix      string
	defaultTTL  time.Duration
	newHash     func() hash.Hash
	sourceCheck bool
	ignoreErrs  bool
	debug       bool
	log         Logger
	hooks       Hooks
}

// New builds a Cache from cfg. A nil-ish config selects the null backend,
// which silently caches nothing; that gets a warning unless suppressed.
func New(cfg Config) (*Cache, error) {
	log := cfg.Logger
	if log == nil {
		log = NopLogger{}
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}

	st := cfg.Store
	if st == nil {
		typ := cfg.Type
		if typ == "" {
			typ = "null"
			if !cfg.SuppressNullWarning {
				log.Warn("no cache backend configured, falling back to null (caching is effectively disabled)", nil)
			}
		}
		bc := cfg.Backend
		if bc.DefaultTTL == 0 {
			bc.DefaultTTL = coalesce(cfg.DefaultTTL, 5*time.Minute)
		}
		// stores that scope Clear by prefix need the effective one
		if bc.KeyPrefix == "" {
			bc.KeyPrefix = coalesce(cfg.KeyPrefix, "memocache_")
		}
		var err error
		st, err = store.Build(typ, bc)
		if err != nil {
			return nil, &ConfigError{Option: "Type", Err: err}
		}
	}

	if cfg.DefaultTTL < 0 && cfg.DefaultTTL != TTLForever {
		return nil, &ConfigError{Option: "DefaultTTL", Err: errors.New("must be >= 0 or TTLForever")}
	}

	return &Cache{
		store:       st,
		prefix:      coalesce(cfg.KeyPrefix, "memocache_"),
		defaultTTL:  coalesce(cfg.DefaultTTL, 5*time.Minute),
		newHash:     coalesceFn(cfg.Hash, sha256.New),
		sourceCheck: cfg.SourceCheck,
		ignoreErrs:  cfg.IgnoreErrors,
		debug:       cfg.Debug,
		log:         log,
		hooks:       hooks,
	}, nil
}

func (c *Cache) key(k string) string { return c.prefix + k }

// resolveTTL maps the sentinel durations onto the store contract, where 0
// means "never expires".
func (c *Cache) resolveTTL(d time.Duration) time.Duration {
	switch {
	case d == TTLDefault:
		d = c.defaultTTL
	case d < 0:
		return 0
	}
	if d == TTLForever {
		return 0
	}
	return d
}

// Get fetches the raw bytes stored under key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.Get(ctx, c.key(key))
}

// Set stores raw bytes under key, replacing any existing entry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.store.Set(ctx, c.key(key), value, c.resolveTTL(ttl))
}

// Add stores value only when key is currently absent; reports whether the
// write happened.
func (c *Cache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.store.Add(ctx, c.key(key), value, c.resolveTTL(ttl))
}

// Delete removes key; reports whether an entry existed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	return c.store.Delete(ctx, c.key(key))
}

// GetMany fetches several keys in one backend round trip. The result is
// positional; missing keys yield nil slots.
func (c *Cache) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	pk := make([]string, len(keys))
	for i, k := range keys {
		pk[i] = c.key(k)
	}
	return c.store.GetMany(ctx, pk...)
}

// SetMany stores several entries with a shared TTL.
func (c *Cache) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	pi := make(map[string][]byte, len(items))
	for k, v := range items {
		pi[c.key(k)] = v
	}
	return c.store.SetMany(ctx, pi, c.resolveTTL(ttl))
}

// DeleteMany removes several keys and returns the ones actually deleted.
// With Config.IgnoreErrors a failing key is skipped instead of aborting.
func (c *Cache) DeleteMany(ctx context.Context, keys ...string) ([]string, error) {
	pk := make([]string, len(keys))
	for i, k := range keys {
		pk[i] = c.key(k)
	}
	deleted, err := c.store.DeleteMany(ctx, c.ignoreErrs, pk...)
	out := make([]string, len(deleted))
	for i, k := range deleted {
		out[i] = k[len(c.prefix):]
	}
	return out, err
}

// Has reports whether key holds a live entry, without fetching it.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	return c.store.Has(ctx, c.key(key))
}

// Clear drops every entry the backend can attribute to this cache.
func (c *Cache) Clear(ctx context.Context) (bool, error) {
	return c.store.Clear(ctx)
}

// Incr atomically adds delta to the integer at key and returns the result.
func (c *Cache) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return c.store.Incr(ctx, c.key(key), delta)
}

// Decr atomically subtracts delta from the integer at key.
func (c *Cache) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return c.store.Decr(ctx, c.key(key), delta)
}

// Close releases backend resources.
func (c *Cache) Close(ctx context.Context) error { return c.store.Close(ctx) }

// GetAs fetches key and decodes it with cd. ok is false on a miss.
func GetAs[V any](ctx context.Context, c *Cache, cd codec.Codec[V], key string) (V, bool, error) {
	var zero V
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := cd.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// SetAs encodes v with cd and stores it under key.
func SetAs[V any](ctx context.Context, c *Cache, cd codec.Codec[V], key string, v V, ttl time.Duration) (bool, error) {
	raw, err := cd.Encode(v)
	if err != nil {
		return false, err
	}
	return c.Set(ctx, key, raw, ttl)
}
