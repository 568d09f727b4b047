// Package memocache implements a backend-agnostic result cache: memoized
// function calls, cached request handlers, and template fragments, all over
// one pluggable byte store.
//
// Components:
//   - store.Store: byte store with TTL (simple, filesystem, redis,
//     memcached, bigcache, ristretto, null); selected by tag via
//     store.Register / Config.Type, or injected directly.
//   - codec.Codec[V]: (de)serializes V <-> []byte. Msgpack by default.
//   - Signature: declares a function's parameters so positional and
//     keyword call forms derive the same key.
//
// Keys:
//
//	<digest16><version...>              - memoized results
//	<ns>_memver                         - version token per namespace
//	view/<path>                         - cached handler responses
//	_template_fragment_cache_<name>...  - fragment renders
//
// Invalidation pattern:
//
//	fib := memocache.Memoize(cache, fibFn, memocache.Sig("n"), memocache.MemoizeOptions[int]{})
//	v, _ := fib.Call(ctx, 40)    // computed once, then served from cache
//	_ = fib.Invalidate(ctx)      // rotate version token; all entries orphaned
package memocache
