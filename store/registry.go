package store

import (
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"
)

// Config carries the backend-agnostic options a Factory may consume. Each
// backend documents which fields it reads; unknown fields are ignored, but an
// unusable required field is a construction error.
type Config struct {
	// DefaultTTL is the fallback expiry stores may apply internally.
	DefaultTTL time.Duration

	// KeyPrefix is informational for stores whose Clear must stay inside a
	// shared keyspace (redis scans by this prefix instead of flushing).
	KeyPrefix string

	// Threshold caps entry counts for pruning stores (simple, filesystem).
	// 0 disables the cap.
	Threshold int

	// Dir and FileMode configure the filesystem store.
	Dir      string
	FileMode fs.FileMode

	// Addrs configures networked stores (redis, memcached).
	Addrs []string

	// Client lets the caller inject an already-configured client handle
	// (e.g. a redis.UniversalClient). The store type-asserts it.
	Client any
}

// Factory builds a Store from Config. Backends register one under a tag in
// their init function, database/sql style; the application imports the
// backend packages it deploys with.
type Factory func(cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under tag. It panics when the tag is
// empty, the factory nil, or the tag already taken, since all of those are
// programmer errors at process startup.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if tag == "" || f == nil {
		panic("store: Register with empty tag or nil factory")
	}
	if _, dup := registry[tag]; dup {
		panic("store: Register called twice for " + tag)
	}
	registry[tag] = f
}

// Build constructs the store registered under tag. Unknown tags are a
// configuration error and must not be swallowed by callers.
func Build(tag string, cfg Config) (Store, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unknown backend %q (registered: %v)", tag, Tags())
	}
	return f(cfg)
}

// Tags returns the registered backend tags, sorted.
func Tags() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
