package memocache

import (
	"context"
	"testing"
)

func TestVersionTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok := newVersionToken()
		if len(tok) != 6 {
			t.Fatalf("token %q has length %d", tok, len(tok))
		}
		seen[tok] = true
	}
	if len(seen) < 99 {
		t.Fatalf("tokens look non-random: %d distinct of 100", len(seen))
	}
}

func TestVersionStableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)
	ns := Namespace{Module: "app", Name: "load"}

	v1, err := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	if err != nil {
		t.Fatalf("memoizeVersion: %v", err)
	}
	v2, err := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	if err != nil {
		t.Fatalf("memoizeVersion: %v", err)
	}
	if v1 == "" || v1 != v2 {
		t.Fatalf("version data must be stable: %q vs %q", v1, v2)
	}
}

func TestVersionResetRotates(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)
	ns := Namespace{Module: "app", Name: "load"}

	before, _ := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	rotated, err := cc.memoizeVersion(ctx, ns, "", true, false, false, 0)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if rotated == before {
		t.Fatal("reset must mint a new token")
	}
	after, _ := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	if after != rotated {
		t.Fatalf("rotated token must persist: %q vs %q", after, rotated)
	}
}

func TestInstanceVersionAppended(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)
	ns := Namespace{Module: "app", Name: "load"}

	fnOnly, _ := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	withInst, err := cc.memoizeVersion(ctx, ns, "inst-1", false, false, false, 0)
	if err != nil {
		t.Fatalf("memoizeVersion: %v", err)
	}
	if len(withInst) != 2*len(fnOnly) {
		t.Fatalf("expected function+instance tokens, got %q (fn %q)", withInst, fnOnly)
	}
	if withInst[:len(fnOnly)] != fnOnly {
		t.Fatal("function-level token must prefix instance version data")
	}
}

// TestInstanceResetIsScoped verifies that resetting one instance's version
// leaves the function-level token and sibling instances untouched.
func TestInstanceResetIsScoped(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)
	ns := Namespace{Module: "app", Name: "load"}

	a1, _ := cc.memoizeVersion(ctx, ns, "inst-a", false, false, false, 0)
	b1, _ := cc.memoizeVersion(ctx, ns, "inst-b", false, false, false, 0)

	if _, err := cc.memoizeVersion(ctx, ns, "inst-a", true, false, false, 0); err != nil {
		t.Fatalf("instance reset: %v", err)
	}

	a2, _ := cc.memoizeVersion(ctx, ns, "inst-a", false, false, false, 0)
	b2, _ := cc.memoizeVersion(ctx, ns, "inst-b", false, false, false, 0)

	if a2 == a1 {
		t.Fatal("reset instance must get new version data")
	}
	if b2 != b1 {
		t.Fatal("sibling instance version data must be untouched")
	}
	// Shared function-level prefix survives the instance reset.
	if a2[:6] != a1[:6] {
		t.Fatal("function-level token must survive an instance reset")
	}
}

// TestForcedKeepsTokenValues verifies a forced update refreshes the stored
// tokens without rotating them, so only the caller's own entry is replaced.
func TestForcedKeepsTokenValues(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)
	ns := Namespace{Module: "app", Name: "load"}

	before, _ := cc.memoizeVersion(ctx, ns, "inst", false, false, false, 0)
	forced, err := cc.memoizeVersion(ctx, ns, "inst", false, false, true, 0)
	if err != nil {
		t.Fatalf("forced: %v", err)
	}
	if forced != before {
		t.Fatalf("forced update must keep token values: %q vs %q", forced, before)
	}
	after, _ := cc.memoizeVersion(ctx, ns, "inst", false, false, false, 0)
	if after != before {
		t.Fatalf("rewritten tokens must persist unchanged: %q vs %q", after, before)
	}
}

func TestVersionDeleteDropsNarrowestScope(t *testing.T) {
	ctx := context.Background()
	mp := newMemStore()
	cc := newTestCache(t, mp, nil)
	ns := Namespace{Module: "app", Name: "load"}

	fn1, _ := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	cc.memoizeVersion(ctx, ns, "inst", false, false, false, 0)

	// Dropping the instance scope leaves the function token alone.
	if v, err := cc.memoizeVersion(ctx, ns, "inst", false, true, false, 0); err != nil || v != "" {
		t.Fatalf("delete: v=%q err=%v", v, err)
	}
	fn2, _ := cc.memoizeVersion(ctx, ns, "", false, false, false, 0)
	if fn2 != fn1 {
		t.Fatal("function token must survive instance version delete")
	}
}
