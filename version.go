package memocache

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Version tokens implement O(1) bulk invalidation: every memoized key embeds
// the current token(s) of its namespace, so rotating a token orphans every
// key built under the old one without touching them individually. Orphans
// age out via their own TTLs.

const versionKeySuffix = "_memver"

// newVersionToken mints a short random token. Collisions across rotations
// are harmless as long as consecutive tokens differ, which 6 base64 chars of
// UUID entropy makes overwhelmingly likely.
func newVersionToken() string {
	b := uuid.New()
	return base64.StdEncoding.EncodeToString(b[:])[:6]
}

func versionKey(ns string) string { return ns + versionKeySuffix }

// memoizeVersion resolves the version data embedded in a memoized key. The
// function-level token always participates; when instanceTok is non-empty an
// instance-level token is appended, so per-instance invalidation never
// disturbs sibling instances.
//
// reset rotates only the narrowest scope present (the instance token when
// there is one, the function token otherwise). del removes that same scope's
// token entirely and returns empty version data. forced marks the fetched
// tokens dirty so they are rewritten with a fresh TTL, leaving their values
// intact.
func (c *Cache) memoizeVersion(ctx context.Context, ns Namespace, instanceTok string, reset, del, forced bool, ttl time.Duration) (string, error) {
	fetchKeys := []string{versionKey(ns.String())}
	if instanceTok != "" {
		fetchKeys = append(fetchKeys, versionKey(ns.withToken(instanceTok)))
	}

	// Only the narrowest scope is deleted, never both.
	if del {
		if _, err := c.Delete(ctx, fetchKeys[len(fetchKeys)-1]); err != nil {
			return "", err
		}
		c.hooks.VersionRotated(ns.String())
		return "", nil
	}

	vals, err := c.GetMany(ctx, fetchKeys...)
	if err != nil {
		return "", err
	}
	tokens := make([]string, len(fetchKeys))
	for i, v := range vals {
		if v != nil {
			tokens[i] = string(v)
		}
	}

	// A forced update rewrites the tokens as-is, refreshing their TTL
	// without changing their value: the caller overwrites its own entry,
	// so sibling entries under the same tokens must stay addressable.
	dirty := forced
	for i := range tokens {
		if tokens[i] == "" {
			tokens[i] = newVersionToken()
			dirty = true
		}
	}

	// Likewise resets touch only the narrowest scope.
	if reset {
		fetchKeys = fetchKeys[len(fetchKeys)-1:]
		tokens = []string{newVersionToken()}
		dirty = true
		c.hooks.VersionRotated(ns.String())
	}

	if dirty {
		items := make(map[string][]byte, len(fetchKeys))
		for i, k := range fetchKeys {
			items[k] = []byte(tokens[i])
		}
		if _, err := c.SetMany(ctx, items, ttl); err != nil {
			return "", err
		}
	}

	joined := ""
	for _, t := range tokens {
		joined += t
	}
	return joined, nil
}
