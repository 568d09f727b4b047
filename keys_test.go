package memocache

import (
	"errors"
	"strings"
	"testing"
)

func mustNormalize(t *testing.T, sig Signature, call Args, ignore map[string]bool) ([]any, []kvPair) {
	t.Helper()
	pos, kw, err := normalizeArgs(sig, call, ignore)
	if err != nil {
		t.Fatalf("normalizeArgs: %v", err)
	}
	return pos, kw
}

func materialOf(t *testing.T, sig Signature, call Args, ignore map[string]bool) string {
	t.Helper()
	pos, kw := mustNormalize(t, sig, call, ignore)
	return callMaterial("f", pos, kw)
}

// ==============================
// Argument normalization
// ==============================

// TestEquivalentCallForms verifies that positional, keyword, and mixed
// spellings of the same logical call produce identical key material.
func TestEquivalentCallForms(t *testing.T) {
	sig := Sig("a", "b")
	forms := []Args{
		{Positional: []any{1, 2}},
		{Keyword: map[string]any{"a": 1, "b": 2}},
		{Positional: []any{1}, Keyword: map[string]any{"b": 2}},
	}
	want := materialOf(t, sig, forms[0], nil)
	for i, f := range forms[1:] {
		if got := materialOf(t, sig, f, nil); got != want {
			t.Fatalf("form %d: %q != %q", i+1, got, want)
		}
	}
}

func TestDefaultFillsOmittedParam(t *testing.T) {
	sig := Sig("a", "b").WithDefault("b", 10)
	explicit := materialOf(t, sig, Args{Positional: []any{1, 10}}, nil)
	omitted := materialOf(t, sig, Args{Positional: []any{1}}, nil)
	if explicit != omitted {
		t.Fatalf("default not applied: %q != %q", omitted, explicit)
	}
	other := materialOf(t, sig, Args{Positional: []any{1, 11}}, nil)
	if other == explicit {
		t.Fatal("different value for b must change the material")
	}
}

func TestDistinctArgsDistinctMaterial(t *testing.T) {
	sig := Sig("a")
	cases := []Args{
		{Positional: []any{1}},
		{Positional: []any{2}},
		{Positional: []any{"1"}}, // string 1 vs int 1
		{Positional: []any{nil}},
	}
	seen := map[string]int{}
	for i, cs := range cases {
		m := materialOf(t, sig, cs, nil)
		if j, dup := seen[m]; dup {
			t.Fatalf("cases %d and %d collide on %q", j, i, m)
		}
		seen[m] = i
	}
}

func TestIgnoredParamDoesNotAffectMaterial(t *testing.T) {
	sig := Sig("a", "token")
	ignore := map[string]bool{"token": true}
	m1 := materialOf(t, sig, Args{Positional: []any{1, "t-one"}}, ignore)
	m2 := materialOf(t, sig, Args{Positional: []any{1, "t-two"}}, ignore)
	if m1 != m2 {
		t.Fatalf("ignored param leaked into material: %q != %q", m1, m2)
	}
	m3 := materialOf(t, sig, Args{Positional: []any{2, "t-one"}}, ignore)
	if m3 == m1 {
		t.Fatal("non-ignored param must still discriminate")
	}
}

func TestExtraPositionalsAppended(t *testing.T) {
	sig := Sig("a")
	m1 := materialOf(t, sig, Args{Positional: []any{1, 2, 3}}, nil)
	m2 := materialOf(t, sig, Args{Positional: []any{1, 3, 2}}, nil)
	if m1 == m2 {
		t.Fatal("overflow positional order must matter")
	}
}

func TestOverflowKeywordsSorted(t *testing.T) {
	sig := Sig("a")
	call := Args{Positional: []any{1}, Keyword: map[string]any{"zz": 1, "aa": 2, "mm": 3}}
	_, kw := mustNormalize(t, sig, call, nil)
	names := make([]string, len(kw))
	for i, p := range kw {
		names[i] = p.k
	}
	if strings.Join(names, ",") != "aa,mm,zz" {
		t.Fatalf("overflow keywords not sorted: %v", names)
	}
}

// ==============================
// Receivers
// ==============================

type account struct{ id string }

func (a *account) CachingID() string { return "acct:" + a.id }

type widget struct{ n int }

func TestInstanceTokenUsesCachingID(t *testing.T) {
	sig := Sig("self", "x")
	a := &account{id: "7"}
	b := &account{id: "7"}
	m1 := materialOf(t, sig, Args{Positional: []any{a, 1}}, nil)
	m2 := materialOf(t, sig, Args{Positional: []any{b, 1}}, nil)
	if m1 != m2 {
		t.Fatal("equal CachingID receivers must share material")
	}
	c := &account{id: "8"}
	if m3 := materialOf(t, sig, Args{Positional: []any{c, 1}}, nil); m3 == m1 {
		t.Fatal("different CachingID receivers must not share material")
	}
}

func TestInstanceTokenDefaultsToAddress(t *testing.T) {
	sig := Sig("self", "x")
	w1, w2 := &widget{n: 1}, &widget{n: 1}
	m1 := materialOf(t, sig, Args{Positional: []any{w1, 5}}, nil)
	m2 := materialOf(t, sig, Args{Positional: []any{w2, 5}}, nil)
	if m1 == m2 {
		t.Fatal("distinct live instances must not share material by default")
	}
}

func TestIgnoreSelfSharesAcrossInstances(t *testing.T) {
	sig := Sig("self", "x")
	ignore := map[string]bool{"self": true}
	m1 := materialOf(t, sig, Args{Positional: []any{&widget{n: 1}, 5}}, ignore)
	m2 := materialOf(t, sig, Args{Positional: []any{&widget{n: 2}, 5}}, ignore)
	if m1 != m2 {
		t.Fatal("ignoring self must share the cache across instances")
	}
}

func TestMissingReceiver(t *testing.T) {
	sig := Sig("self", "x")
	_, _, err := normalizeArgs(sig, Args{}, nil)
	if !errors.Is(err, ErrMissingReceiver) {
		t.Fatalf("expected ErrMissingReceiver, got %v", err)
	}
}

func TestClassMethodRequiresClassRef(t *testing.T) {
	sig := Sig("cls", "x")
	_, _, err := normalizeArgs(sig, Args{Positional: []any{&widget{}, 1}}, nil)
	if !errors.Is(err, ErrClassRequired) {
		t.Fatalf("expected ErrClassRequired, got %v", err)
	}
	if _, _, err := normalizeArgs(sig, Args{Positional: []any{ClassOf(&widget{}), 1}}, nil); err != nil {
		t.Fatalf("ClassRef receiver rejected: %v", err)
	}
}

func TestClassRefSharedAcrossInstances(t *testing.T) {
	c1, c2 := ClassOf(&widget{n: 1}), ClassOf(widget{n: 2})
	if c1.String() != c2.String() {
		t.Fatalf("ClassOf must unwrap pointers: %q != %q", c1, c2)
	}
}

// ==============================
// Namespaces
// ==============================

func fixtureFunc() {}

func TestNamespaceOfNamedFunc(t *testing.T) {
	ns := namespaceOf(fixtureFunc)
	if ns.Name != "fixtureFunc" {
		t.Fatalf("Name = %q", ns.Name)
	}
	if !strings.HasSuffix(ns.Module, "memocache") {
		t.Fatalf("Module = %q", ns.Module)
	}
}

func TestNamespaceSanitized(t *testing.T) {
	ns := Namespace{Module: "pkg/sub", Name: "Do-Thing"}
	s := ns.String()
	for _, r := range s {
		valid := r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !valid {
			t.Fatalf("namespace %q contains %q", s, r)
		}
	}
}
