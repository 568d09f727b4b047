package memocache

import (
	"context"
	"strings"
	"time"
)

const fragmentKeyTemplate = "_template_fragment_cache_"

// FragmentKey builds the key a rendered template fragment caches under.
// varyOn values distinguish renders of the same fragment, e.g. a user ID.
func FragmentKey(name string, varyOn ...string) string {
	if len(varyOn) > 0 {
		name += "_"
	}
	return fragmentKeyTemplate + name + strings.Join(varyOn, "_")
}

// Fragment returns the cached render of a named fragment, invoking render
// and storing the result on a miss. Passing TTLDelete drops the entry and
// returns a fresh render without caching it; the next regular call starts
// cold.
func (c *Cache) Fragment(ctx context.Context, ttl time.Duration, name string, varyOn []string, render func() (string, error)) (string, error) {
	key := FragmentKey(name, varyOn...)

	if ttl == TTLDelete {
		if _, err := c.Delete(ctx, key); err != nil {
			c.hooks.BackendError("delete", key, err)
		}
		return render()
	}

	if raw, ok, err := c.Get(ctx, key); err != nil {
		c.hooks.BackendError("get", key, err)
	} else if ok {
		return string(raw), nil
	}

	out, err := render()
	if err != nil {
		return "", err
	}
	if _, err := c.Set(ctx, key, []byte(out), ttl); err != nil {
		c.hooks.BackendError("set", key, err)
		c.log.Warn("failed to store template fragment", Fields{"key": key, "error": err.Error()})
	}
	return out, nil
}

// DeleteFragment removes a cached fragment render.
func (c *Cache) DeleteFragment(ctx context.Context, name string, varyOn ...string) error {
	_, err := c.Delete(ctx, FragmentKey(name, varyOn...))
	return err
}
