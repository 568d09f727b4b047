package memocache

import (
	"context"
	"hash"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/keyvern/memocache/codec"
	"github.com/keyvern/memocache/internal/wire"
)

// Func is the shape of a memoizable computation. It receives the call's
// arguments exactly as passed to Call or CallArgs; for method-style
// signatures the receiver arrives at Positional[0].
type Func[T any] func(ctx context.Context, args Args) (T, error)

// MemoizeOptions tunes one memoized function. The zero value works: name
// and module come from the runtime symbol table, encoding uses msgpack,
// hashing follows the cache config.
type MemoizeOptions[T any] struct {
	// Name and Module override the runtime-derived namespace. Set them
	// for closures and anonymous functions, whose derived names shift
	// with unrelated refactors.
	Name   string
	Module string

	// MakeName transforms the resolved function name before it enters
	// the namespace.
	MakeName func(string) string

	// TTL for stored results; TTLDefault defers to the cache default.
	// Adjustable later via SetTTL.
	TTL time.Duration

	// Unless skips caching entirely when it returns true for a call.
	Unless func(ctx context.Context, args Args) bool

	// ForcedUpdate recomputes and overwrites on true, rotating version
	// tokens so dependent keys go stale too.
	ForcedUpdate func(ctx context.Context, args Args) bool

	// ResponseFilter decides whether a computed value is worth storing.
	// The value is returned to the caller either way.
	ResponseFilter func(v T) bool

	// CacheNone makes stored nil results count as hits instead of being
	// recomputed on every call.
	CacheNone bool

	// IgnoreArgs names parameters excluded from key derivation. Naming
	// "self" or "cls" here shares one cache across all instances.
	IgnoreArgs []string

	// SourceVersion is an opaque fingerprint of the function's
	// implementation, embedded in keys when Config.SourceCheck is on so
	// a redeploy with changed code starts cold.
	SourceVersion string

	// Hash overrides the cache-wide key digest for this function.
	Hash func() hash.Hash

	// Codec overrides the msgpack default for stored values.
	Codec codec.Codec[T]
}

// Memoized wraps one function with transparent result caching. Obtain one
// via Memoize; all methods are safe for concurrent use.
type Memoized[T any] struct {
	cache     *Cache
	fn        Func[T]
	sig       Signature
	ns        Namespace
	ttl       atomic.Int64
	ignore    map[string]bool
	unless    func(ctx context.Context, args Args) bool
	forced    func(ctx context.Context, args Args) bool
	filter    func(v T) bool
	cacheNone bool
	sourceFP  string
	newHash   func() hash.Hash
	codec     codec.Codec[T]
}

// Memoize wraps fn so identical calls within the TTL window reuse the
// stored result. sig must describe fn's parameters in order; it is what
// makes positional and keyword call forms key-equivalent.
func Memoize[T any](c *Cache, fn Func[T], sig Signature, opts MemoizeOptions[T]) *Memoized[T] {
	ns := namespaceOf(fn)
	if opts.Module != "" {
		ns.Module = opts.Module
	}
	if opts.Name != "" {
		ns.Name = opts.Name
	}
	if opts.MakeName != nil {
		ns.Name = opts.MakeName(ns.Name)
	}

	ignore := make(map[string]bool, len(opts.IgnoreArgs))
	for _, a := range opts.IgnoreArgs {
		ignore[a] = true
	}

	var cd codec.Codec[T] = opts.Codec
	if cd == nil {
		cd = codec.Msgpack[T]{}
	}

	m := &Memoized[T]{
		cache:     c,
		fn:        fn,
		sig:       sig,
		ns:        ns,
		ignore:    ignore,
		unless:    opts.Unless,
		forced:    opts.ForcedUpdate,
		filter:    opts.ResponseFilter,
		cacheNone: opts.CacheNone,
		newHash:   coalesceFn(opts.Hash, c.newHash),
		codec:     cd,
	}
	// A per-function SourceVersion opts in on its own; SourceCheck is the
	// cache-wide switch.
	if c.sourceCheck || opts.SourceVersion != "" {
		m.sourceFP = opts.SourceVersion
	}
	m.ttl.Store(int64(opts.TTL))
	return m
}

// Namespace reports the namespace this function caches under.
func (m *Memoized[T]) Namespace() Namespace { return m.ns }

// TTL reports the current per-function TTL.
func (m *Memoized[T]) TTL() time.Duration { return time.Duration(m.ttl.Load()) }

// SetTTL changes the TTL for subsequent writes. Existing entries keep the
// expiry they were stored with.
func (m *Memoized[T]) SetTTL(d time.Duration) { m.ttl.Store(int64(d)) }

type callTTLKey struct{}

// SetCallTTL returns a context that overrides the memoized TTL for calls
// made with it.
func SetCallTTL(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, callTTLKey{}, d)
}

func (m *Memoized[T]) effectiveTTL(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(callTTLKey{}).(time.Duration); ok {
		return d
	}
	return m.TTL()
}

// Call invokes the function with positional arguments, serving from cache
// when a live entry exists.
func (m *Memoized[T]) Call(ctx context.Context, args ...any) (T, error) {
	return m.CallArgs(ctx, Args{Positional: args})
}

// CallArgs is Call for mixed positional/keyword argument forms.
func (m *Memoized[T]) CallArgs(ctx context.Context, call Args) (T, error) {
	if m.unless != nil && m.unless(ctx, call) {
		m.cache.hooks.Bypassed(m.ns.String(), "unless")
		return m.fn(ctx, call)
	}

	forced := m.forced != nil && m.forced(ctx, call)

	key, err := m.buildKey(ctx, call, forced)
	if err != nil {
		if isProgrammerError(err) {
			var zero T
			return zero, err
		}
		return m.degrade(ctx, call, "key_build", "", err)
	}

	if !forced {
		if v, ok, err := m.lookup(ctx, key); err != nil {
			return m.degrade(ctx, call, "get", key, err)
		} else if ok {
			return v, nil
		}
	}

	v, err := m.fn(ctx, call)
	if err != nil {
		return v, err
	}
	if m.filter != nil && !m.filter(v) {
		return v, nil
	}
	if err := m.storeResult(ctx, key, v); err != nil {
		if isProgrammerError(err) {
			var zero T
			return zero, err
		}
		m.cache.hooks.BackendError("set", key, err)
		if m.cache.debug {
			var zero T
			return zero, err
		}
		m.cache.log.Warn("failed to store memoized result", Fields{
			"func": m.ns.String(), "key": key, "error": err.Error(),
		})
	}
	return v, nil
}

// Uncached invokes the function directly, never touching the cache.
func (m *Memoized[T]) Uncached(ctx context.Context, args ...any) (T, error) {
	return m.fn(ctx, Args{Positional: args})
}

// CacheKey derives the cache key a positional call would use. Useful for
// warming and debugging.
func (m *Memoized[T]) CacheKey(ctx context.Context, args ...any) (string, error) {
	return m.CacheKeyArgs(ctx, Args{Positional: args})
}

// CacheKeyArgs is CacheKey for mixed argument forms.
func (m *Memoized[T]) CacheKeyArgs(ctx context.Context, call Args) (string, error) {
	return m.buildKey(ctx, call, false)
}

// Invalidate rotates the function-level version token, orphaning every
// cached result of this function at once.
func (m *Memoized[T]) Invalidate(ctx context.Context) error {
	_, err := m.cache.memoizeVersion(ctx, m.ns, "", true, false, false, m.effectiveTTL(ctx))
	return err
}

// InvalidateFor rotates only the receiver's instance-level token, leaving
// other instances' results live. Classmethod results share one cache per
// type, so for a cls signature this rotates the function-level token.
func (m *Memoized[T]) InvalidateFor(ctx context.Context, receiver any) error {
	if m.sig.isClassMethod() {
		if _, ok := receiver.(ClassRef); !ok {
			return ErrClassRequired
		}
		return m.Invalidate(ctx)
	}
	_, err := m.cache.memoizeVersion(ctx, m.ns, instanceToken(receiver), true, false, false, m.effectiveTTL(ctx))
	return err
}

// InvalidateCall deletes the single entry a positional call would hit.
func (m *Memoized[T]) InvalidateCall(ctx context.Context, args ...any) error {
	return m.InvalidateCallArgs(ctx, Args{Positional: args})
}

// InvalidateCallArgs is InvalidateCall for mixed argument forms.
func (m *Memoized[T]) InvalidateCallArgs(ctx context.Context, call Args) error {
	key, err := m.buildKey(ctx, call, false)
	if err != nil {
		return err
	}
	_, err = m.cache.Delete(ctx, key)
	return err
}

// DropVersion removes the function-level version token outright. The next
// call mints a fresh one, so this is a heavier Invalidate that also frees
// the token entry.
func (m *Memoized[T]) DropVersion(ctx context.Context) error {
	_, err := m.cache.memoizeVersion(ctx, m.ns, "", false, true, false, 0)
	return err
}

// DropVersionFor removes the receiver's instance-level token. For a cls
// signature it drops the function-level token instead, mirroring
// InvalidateFor.
func (m *Memoized[T]) DropVersionFor(ctx context.Context, receiver any) error {
	if m.sig.isClassMethod() {
		return m.DropVersion(ctx)
	}
	_, err := m.cache.memoizeVersion(ctx, m.ns, instanceToken(receiver), false, true, false, 0)
	return err
}

func (m *Memoized[T]) buildKey(ctx context.Context, call Args, forced bool) (string, error) {
	pos, kw, err := normalizeArgs(m.sig, call, m.ignore)
	if err != nil {
		return "", err
	}

	// Only self receivers get an instance-level version token; a cls
	// receiver shares one cache across the whole type, scoped by the
	// function token alone.
	instanceTok := ""
	if len(m.sig.Params) > 0 && m.sig.Params[0].Name == "self" && !m.ignore["self"] {
		instanceTok = instanceToken(call.Positional[0])
	}

	versionData, err := m.cache.memoizeVersion(ctx, m.ns, instanceTok, false, false, forced, m.effectiveTTL(ctx))
	if err != nil {
		return "", err
	}

	material := callMaterial(m.ns.String(), pos, kw)
	return hashCallKey(m.newHash, material, m.sourceFP) + versionData, nil
}

// lookup fetches and decodes a stored result. Corrupt or undecodable
// entries self-heal: the entry is deleted and the call proceeds as a miss.
func (m *Memoized[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	nilValue, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		m.selfHeal(ctx, key, "corrupt")
		return zero, false, nil
	}
	if nilValue {
		if m.cacheNone {
			return zero, true, nil
		}
		return zero, false, nil
	}
	v, err := m.codec.Decode(payload)
	if err != nil {
		m.selfHeal(ctx, key, "decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (m *Memoized[T]) selfHeal(ctx context.Context, key, reason string) {
	m.cache.hooks.SelfHeal(key, reason)
	m.cache.log.Warn("dropping unreadable cache entry", Fields{"key": key, "reason": reason})
	if _, err := m.cache.Delete(ctx, key); err != nil {
		m.cache.hooks.BackendError("delete", key, err)
	}
}

func (m *Memoized[T]) storeResult(ctx context.Context, key string, v T) error {
	if err := checkCacheable(v); err != nil {
		return err
	}
	var payload []byte
	isNil := isNilValue(v)
	if !isNil {
		var err error
		payload, err = m.codec.Encode(v)
		if err != nil {
			return err
		}
	}
	_, err := m.cache.Set(ctx, key, wire.EncodeEntry(isNil, payload), m.effectiveTTL(ctx))
	return err
}

// degrade handles backend failures during a cached call: with Config.Debug
// the error surfaces, otherwise the call falls through to the bare
// function so the application keeps working without its cache.
func (m *Memoized[T]) degrade(ctx context.Context, call Args, op, key string, err error) (T, error) {
	m.cache.hooks.BackendError(op, key, err)
	if m.cache.debug {
		var zero T
		return zero, err
	}
	m.cache.log.Warn("cache backend error, executing uncached", Fields{
		"func": m.ns.String(), "op": op, "error": err.Error(),
	})
	m.cache.hooks.Bypassed(m.ns.String(), "backend_error")
	return m.fn(ctx, call)
}

// isProgrammerError reports whether err signals API misuse rather than a
// backend fault; these always surface regardless of Debug.
func isProgrammerError(err error) bool {
	switch err {
	case ErrClassRequired, ErrMissingReceiver, ErrUncacheableValue:
		return true
	}
	return false
}

// isNilValue reports whether v's dynamic value is nil for the kinds that
// can be. Distinguishing a stored nil from a miss needs an explicit flag on
// the wire, so this runs once per write.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// checkCacheable rejects values that cannot round-trip through a byte
// store.
func checkCacheable(v any) error {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Chan, reflect.Func:
		return ErrUncacheableValue
	}
	return nil
}
