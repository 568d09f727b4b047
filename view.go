package memocache

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keyvern/memocache/codec"
	"github.com/keyvern/memocache/internal/keyutil"
	"github.com/keyvern/memocache/internal/wire"
)

// QueryParam is one query-string pair, kept as a pair list rather than a
// map so repeated keys survive.
type QueryParam struct {
	Key   string
	Value string
}

// Request is the slice of an incoming request that key derivation needs.
// Adapt *http.Request values with HTTPRequest, or implement it directly
// for other transports.
type Request interface {
	// Path is the request path, without query string.
	Path() string
	// Query returns the query pairs in arrival order.
	Query() []QueryParam
	// Body returns the request body, or nil when there is none.
	Body() []byte
}

// URLReverser maps an endpoint name plus parameters back to a request
// path, so entries can be invalidated without an in-flight request.
type URLReverser interface {
	Reverse(endpoint string, params map[string]any) (string, error)
}

// Handler is the computation a View caches, typically a rendered response.
type Handler[T any] func(ctx context.Context, req Request) (T, error)

// ViewOptions tunes one cached view.
type ViewOptions[T any] struct {
	// TTL for stored responses; TTLDefault defers to the cache default.
	TTL time.Duration

	// KeyPrefix shapes the derived key. A "%s" inside it is replaced
	// with the request path. Defaults to "view/%s".
	KeyPrefix string

	// KeyFunc replaces key derivation entirely.
	KeyFunc func(ctx context.Context, req Request) (string, error)

	// QueryString folds the query pairs into the key, sorted so
	// ?a=1&b=2 and ?b=2&a=1 share an entry. KeyPrefix is not used in
	// this mode; the key is the path plus a digest of the pairs.
	QueryString bool

	// HashBody folds a digest of the request body into the key, for
	// POST-style endpoints whose response depends on the payload.
	HashBody bool

	// CacheNone makes stored nil responses count as hits.
	CacheNone bool

	// Unless skips caching when it returns true for a request.
	Unless func(ctx context.Context, req Request) bool

	// ForcedUpdate recomputes and overwrites on true.
	ForcedUpdate func(ctx context.Context, req Request) bool

	// ResponseFilter decides whether a response is worth storing.
	ResponseFilter func(v T) bool

	// SourceVersion fingerprints the handler implementation; embedded in
	// keys when Config.SourceCheck is on.
	SourceVersion string

	Hash  func() hash.Hash
	Codec codec.Codec[T]
}

// View caches a request handler's responses keyed by request shape.
// Obtain one via NewView; all methods are safe for concurrent use.
type View[T any] struct {
	cache     *Cache
	handler   Handler[T]
	ttl       atomic.Int64
	prefix    string
	keyFunc   func(ctx context.Context, req Request) (string, error)
	query     bool
	hashBody  bool
	cacheNone bool
	unless    func(ctx context.Context, req Request) bool
	forced    func(ctx context.Context, req Request) bool
	filter    func(v T) bool
	sourceFP  string
	newHash   func() hash.Hash
	codec     codec.Codec[T]
}

// NewView wraps handler with response caching.
func NewView[T any](c *Cache, handler Handler[T], opts ViewOptions[T]) *View[T] {
	var cd codec.Codec[T] = opts.Codec
	if cd == nil {
		cd = codec.Msgpack[T]{}
	}
	v := &View[T]{
		cache:     c,
		handler:   handler,
		prefix:    coalesce(opts.KeyPrefix, "view/%s"),
		keyFunc:   opts.KeyFunc,
		query:     opts.QueryString,
		hashBody:  opts.HashBody,
		cacheNone: opts.CacheNone,
		unless:    opts.Unless,
		forced:    opts.ForcedUpdate,
		filter:    opts.ResponseFilter,
		newHash:   coalesceFn(opts.Hash, c.newHash),
		codec:     cd,
	}
	if c.sourceCheck || opts.SourceVersion != "" {
		v.sourceFP = opts.SourceVersion
	}
	v.ttl.Store(int64(opts.TTL))
	return v
}

// TTL reports the current per-view TTL.
func (v *View[T]) TTL() time.Duration { return time.Duration(v.ttl.Load()) }

// SetTTL changes the TTL for subsequent writes.
func (v *View[T]) SetTTL(d time.Duration) { v.ttl.Store(int64(d)) }

func (v *View[T]) effectiveTTL(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(callTTLKey{}).(time.Duration); ok {
		return d
	}
	return v.TTL()
}

// Serve answers req from cache when possible, invoking the handler and
// storing its response otherwise. Backend failures degrade to a direct
// handler call unless Config.Debug is on.
func (v *View[T]) Serve(ctx context.Context, req Request) (T, error) {
	if v.unless != nil && v.unless(ctx, req) {
		v.cache.hooks.Bypassed(v.prefix, "unless")
		return v.handler(ctx, req)
	}

	key, err := v.Key(ctx, req)
	if err != nil {
		return v.degrade(ctx, req, "key_build", "", err)
	}

	forced := v.forced != nil && v.forced(ctx, req)
	if !forced {
		if resp, ok, err := v.lookup(ctx, key); err != nil {
			return v.degrade(ctx, req, "get", key, err)
		} else if ok {
			return resp, nil
		}
	}

	resp, err := v.handler(ctx, req)
	if err != nil {
		return resp, err
	}
	if v.filter != nil && !v.filter(resp) {
		return resp, nil
	}
	if err := v.store(ctx, key, resp); err != nil {
		if isProgrammerError(err) {
			var zero T
			return zero, err
		}
		v.cache.hooks.BackendError("set", key, err)
		if v.cache.debug {
			var zero T
			return zero, err
		}
		v.cache.log.Warn("failed to store view response", Fields{
			"key": key, "error": err.Error(),
		})
	}
	return resp, nil
}

// Key derives the cache key Serve would use for req.
func (v *View[T]) Key(ctx context.Context, req Request) (string, error) {
	if v.keyFunc != nil {
		return v.keyFunc(ctx, req)
	}

	var key string
	if v.query {
		key = req.Path() + v.queryDigest(req.Query())
	} else if strings.Contains(v.prefix, "%s") {
		key = fmt.Sprintf(v.prefix, req.Path())
	} else {
		key = v.prefix
	}

	if v.hashBody {
		h := v.newHash()
		h.Write(req.Body())
		key += keyutil.ShortDigest(h, 16)
	}
	return key + v.sourceSalt(), nil
}

// sourceSalt digests the handler fingerprint into a key suffix. Appending
// rather than folding keeps path-derived keys reproducible, so KeyForPath
// and InvalidatePath address the same entries Serve writes.
func (v *View[T]) sourceSalt() string {
	if v.sourceFP == "" {
		return ""
	}
	h := v.newHash()
	h.Write([]byte(v.sourceFP))
	return keyutil.ShortDigest(h, 16)
}

// KeyForPath derives the key for a bare path, for invalidation outside a
// request cycle. Only valid when QueryString and HashBody are off.
func (v *View[T]) KeyForPath(path string) string {
	if strings.Contains(v.prefix, "%s") {
		return fmt.Sprintf(v.prefix, path) + v.sourceSalt()
	}
	return v.prefix + v.sourceSalt()
}

// KeyForEndpoint derives the key for a named endpoint via rev.
func (v *View[T]) KeyForEndpoint(rev URLReverser, endpoint string, params map[string]any) (string, error) {
	path, err := rev.Reverse(endpoint, params)
	if err != nil {
		return "", err
	}
	return v.KeyForPath(path), nil
}

// Invalidate deletes the entry Serve would hit for req.
func (v *View[T]) Invalidate(ctx context.Context, req Request) error {
	key, err := v.Key(ctx, req)
	if err != nil {
		return err
	}
	_, err = v.cache.Delete(ctx, key)
	return err
}

// InvalidatePath deletes the entry for a bare path.
func (v *View[T]) InvalidatePath(ctx context.Context, path string) error {
	_, err := v.cache.Delete(ctx, v.KeyForPath(path))
	return err
}

// queryDigest hashes the sorted query pairs so parameter order never
// splits the cache.
func (v *View[T]) queryDigest(params []QueryParam) string {
	sorted := make([]QueryParam, len(params))
	copy(sorted, params)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Value < sorted[j].Value
	})
	h := v.newHash()
	for _, p := range sorted {
		fmt.Fprintf(h, "(%q,%q)", p.Key, p.Value)
	}
	return keyutil.HexDigest(h)
}

func (v *View[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, ok, err := v.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	nilValue, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		v.selfHeal(ctx, key, "corrupt")
		return zero, false, nil
	}
	if nilValue {
		if v.cacheNone {
			return zero, true, nil
		}
		return zero, false, nil
	}
	resp, err := v.codec.Decode(payload)
	if err != nil {
		v.selfHeal(ctx, key, "decode")
		return zero, false, nil
	}
	return resp, true, nil
}

func (v *View[T]) selfHeal(ctx context.Context, key, reason string) {
	v.cache.hooks.SelfHeal(key, reason)
	v.cache.log.Warn("dropping unreadable cache entry", Fields{"key": key, "reason": reason})
	if _, err := v.cache.Delete(ctx, key); err != nil {
		v.cache.hooks.BackendError("delete", key, err)
	}
}

func (v *View[T]) store(ctx context.Context, key string, resp T) error {
	if err := checkCacheable(resp); err != nil {
		return err
	}
	var payload []byte
	isNil := isNilValue(resp)
	if !isNil {
		var err error
		payload, err = v.codec.Encode(resp)
		if err != nil {
			return err
		}
	}
	_, err := v.cache.Set(ctx, key, wire.EncodeEntry(isNil, payload), v.effectiveTTL(ctx))
	return err
}

func (v *View[T]) degrade(ctx context.Context, req Request, op, key string, err error) (T, error) {
	v.cache.hooks.BackendError(op, key, err)
	if v.cache.debug {
		var zero T
		return zero, err
	}
	v.cache.log.Warn("cache backend error, serving uncached", Fields{
		"op": op, "error": err.Error(),
	})
	v.cache.hooks.Bypassed(v.prefix, "backend_error")
	return v.handler(ctx, req)
}

// httpRequest adapts *http.Request to Request. Query pairs keep their
// arrival order; the body is read once on demand and restored so the
// handler can read it again.
type httpRequest struct {
	r        *http.Request
	bodyOnce sync.Once
	body     []byte
}

// HTTPRequest adapts r for use with View.Serve.
func HTTPRequest(r *http.Request) Request { return &httpRequest{r: r} }

func (h *httpRequest) Path() string { return h.r.URL.Path }

func (h *httpRequest) Query() []QueryParam {
	raw := h.r.URL.RawQuery
	if raw == "" {
		return nil
	}
	var out []QueryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		ku, err := url.QueryUnescape(k)
		if err != nil {
			ku = k
		}
		vu, err := url.QueryUnescape(v)
		if err != nil {
			vu = v
		}
		out = append(out, QueryParam{Key: ku, Value: vu})
	}
	return out
}

func (h *httpRequest) Body() []byte {
	h.bodyOnce.Do(func() {
		if h.r.Body == nil {
			return
		}
		b, err := io.ReadAll(h.r.Body)
		if err != nil {
			return
		}
		h.r.Body.Close()
		h.r.Body = io.NopCloser(bytes.NewReader(b))
		h.body = b
	})
	return h.body
}
