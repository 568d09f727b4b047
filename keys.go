package memocache

import (
	"fmt"
	"hash"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/keyvern/memocache/internal/keyutil"
)

// Param describes one declared positional-or-keyword parameter of a wrapped
// function. Default, when non-nil, fills the slot for calls that omit the
// parameter.
type Param struct {
	Name    string
	Default any
}

// Signature is the explicit parameter descriptor registered alongside every
// memoized function. Go offers no runtime keyword-argument reflection, so
// what a dynamic language would introspect is declared here instead.
//
// A first parameter named "self" marks an instance method; "cls" marks a
// classmethod. Those two names drive per-instance and per-class cache
// scoping.
type Signature struct {
	Params []Param
}

// Sig builds a Signature from ordered parameter names.
func Sig(names ...string) Signature {
	ps := make([]Param, len(names))
	for i, n := range names {
		ps[i] = Param{Name: n}
	}
	return Signature{Params: ps}
}

// WithDefault returns a copy of the signature with a default value attached
// to the named parameter. Unknown names are ignored.
func (s Signature) WithDefault(name string, def any) Signature {
	ps := make([]Param, len(s.Params))
	copy(ps, s.Params)
	for i := range ps {
		if ps[i].Name == name {
			ps[i].Default = def
		}
	}
	return Signature{Params: ps}
}

func (s Signature) isMethod() bool {
	return len(s.Params) > 0 && (s.Params[0].Name == "self" || s.Params[0].Name == "cls")
}

func (s Signature) isClassMethod() bool {
	return len(s.Params) > 0 && s.Params[0].Name == "cls"
}

// Args carries one call's arguments: positional values in declaration order
// plus keyword values by parameter name. The key builder normalizes the two
// forms, so f(1, 2), f(a=1, b=2) and f(1, b=2) all build the same key.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// P is shorthand for purely positional Args.
func P(args ...any) Args { return Args{Positional: args} }

// CacheIdentity lets a receiver override the token identifying it in cache
// keys. Use a stable business identifier (e.g. a user ID) when cached state
// must survive process restarts; the default token is address-based.
type CacheIdentity interface {
	CachingID() string
}

// ClassRef stands in for "the class" when working with classmethod-style
// signatures. All instances of one type share a ClassRef, which is what
// makes their memoized classmethod cache shared.
type ClassRef struct {
	t reflect.Type
}

// ClassOf derives the ClassRef of a value (pointers are unwrapped).
func ClassOf(v any) ClassRef {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return ClassRef{t: t}
}

func (c ClassRef) String() string {
	if c.t == nil {
		return "<class nil>"
	}
	if p := c.t.PkgPath(); p != "" {
		return "<class " + p + "." + c.t.Name() + ">"
	}
	return "<class " + c.t.String() + ">"
}

// instanceToken renders an opaque identity for a receiver value: its
// CachingID when provided, a ClassRef's type path, otherwise an
// address-based repr so two live instances never collide.
func instanceToken(v any) string {
	switch x := v.(type) {
	case CacheIdentity:
		return x.CachingID()
	case ClassRef:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<%T %#x>", v, rv.Pointer())
	default:
		return fmt.Sprintf("<%T %#v>", v, v)
	}
}

// Namespace identifies a function for caching purposes, independent of any
// instance it may be bound to.
type Namespace struct {
	Module string
	Name   string
}

func (n Namespace) String() string {
	return keyutil.Sanitize(n.Module + "." + n.Name)
}

// withToken appends an instance token, yielding the instance-scoped
// namespace.
func (n Namespace) withToken(tok string) string {
	return keyutil.Sanitize(n.Module + "." + n.Name + "." + tok)
}

// namespaceOf derives a Namespace from a function value via the runtime
// symbol table. Bound-method wrappers carry a "-fm" suffix that is stripped.
// Anonymous functions get positional names like pkg.Foo.func1; override with
// MemoizeOptions.Name when a stable name matters across refactors.
func namespaceOf(fn any) Namespace {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return Namespace{Module: "unknown", Name: "func"}
	}
	full := runtime.FuncForPC(rv.Pointer()).Name()
	full = strings.TrimSuffix(full, "-fm")
	if i := strings.LastIndex(full, "."); i > 0 {
		return Namespace{Module: full[:i], Name: full[i+1:]}
	}
	return Namespace{Module: "main", Name: full}
}

type kvPair struct {
	k string
	v any
}

// normalizeArgs canonicalizes a call against a signature:
//
//  1. each declared parameter, in order: ignore-list => nil placeholder;
//     leading self/cls => the receiver's instance token; then keyword value,
//     positional value, declared default, nil placeholder - first match wins.
//  2. extra positionals beyond the declared list are appended verbatim.
//  3. unconsumed keywords are collected and sorted by name.
//
// The result is the canonical form hashed into the cache key, which is what
// makes memoization call-shape-equivalent instead of call-syntax-equivalent.
func normalizeArgs(sig Signature, call Args, ignore map[string]bool) ([]any, []kvPair, error) {
	params := sig.Params
	newArgs := make([]any, 0, len(params)+len(call.Positional))
	argNum := 0

	kwRemaining := make(map[string]bool, len(call.Keyword))
	for k := range call.Keyword {
		kwRemaining[k] = true
	}

	for i, p := range params {
		switch {
		case ignore[p.Name]:
			newArgs = append(newArgs, nil)
			argNum++
		case i == 0 && (p.Name == "self" || p.Name == "cls"):
			if len(call.Positional) == 0 {
				return nil, nil, ErrMissingReceiver
			}
			recv := call.Positional[0]
			if p.Name == "cls" {
				if _, ok := recv.(ClassRef); !ok {
					return nil, nil, ErrClassRequired
				}
			}
			newArgs = append(newArgs, instanceToken(recv))
			argNum++
		case kwRemaining[p.Name]:
			newArgs = append(newArgs, call.Keyword[p.Name])
			delete(kwRemaining, p.Name)
		case argNum < len(call.Positional):
			newArgs = append(newArgs, call.Positional[argNum])
			argNum++
		case p.Default != nil:
			newArgs = append(newArgs, p.Default)
			argNum++
		default:
			newArgs = append(newArgs, nil)
			argNum++
		}
	}

	// *args-style overflow, in original order
	if len(call.Positional) > len(params) {
		newArgs = append(newArgs, call.Positional[len(params):]...)
	}

	// **kwargs-style overflow, sorted for determinism
	rest := make([]kvPair, 0, len(kwRemaining))
	for k := range kwRemaining {
		rest = append(rest, kvPair{k: k, v: call.Keyword[k]})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].k < rest[j].k })

	return newArgs, rest, nil
}

// callMaterial renders the canonical call as the string fed to the hash.
// %#v keeps types apart ("1" never collides with 1).
func callMaterial(name string, pos []any, kw []kvPair) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, v := range pos {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%#v", v)
	}
	b.WriteByte(')')
	b.WriteByte('{')
	for i, p := range kw {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%#v", p.k, p.v)
	}
	b.WriteByte('}')
	return b.String()
}

// hashCallKey hashes the material (plus an optional source fingerprint) and
// truncates to a 16-character base64 prefix; the caller appends version
// tokens after it.
func hashCallKey(newHash func() hash.Hash, material, sourceFingerprint string) string {
	h := newHash()
	h.Write([]byte(material))
	if sourceFingerprint != "" {
		h.Write([]byte(sourceFingerprint))
	}
	return keyutil.ShortDigest(h, 16)
}
