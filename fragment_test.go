package memocache

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestFragmentKeyShape(t *testing.T) {
	if got := FragmentKey("sidebar"); got != "_template_fragment_cache_sidebar" {
		t.Fatalf("FragmentKey = %q", got)
	}
	if got := FragmentKey("sidebar", "u1", "en"); got != "_template_fragment_cache_sidebar_u1_en" {
		t.Fatalf("FragmentKey with varyOn = %q", got)
	}
}

func TestFragmentRenderOnce(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)

	var renders atomic.Int64
	render := func() (string, error) {
		renders.Add(1)
		return "<div>hi</div>", nil
	}

	for i := 0; i < 3; i++ {
		out, err := cc.Fragment(ctx, 0, "sidebar", nil, render)
		if err != nil || out != "<div>hi</div>" {
			t.Fatalf("Fragment: out=%q err=%v", out, err)
		}
	}
	if renders.Load() != 1 {
		t.Fatalf("fragment rendered %d times, want 1", renders.Load())
	}
}

func TestFragmentVaryOnIsolates(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)

	var renders atomic.Int64
	render := func() (string, error) {
		renders.Add(1)
		return "x", nil
	}

	cc.Fragment(ctx, 0, "sidebar", []string{"u1"}, render)
	cc.Fragment(ctx, 0, "sidebar", []string{"u2"}, render)
	cc.Fragment(ctx, 0, "sidebar", []string{"u1"}, render)
	if renders.Load() != 2 {
		t.Fatalf("varyOn isolation broken: renders=%d", renders.Load())
	}
}

func TestFragmentDeleteSentinel(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)

	var renders atomic.Int64
	render := func() (string, error) {
		renders.Add(1)
		return "x", nil
	}

	cc.Fragment(ctx, 0, "sidebar", nil, render)
	// TTLDelete drops the stale render and serves a fresh one uncached.
	cc.Fragment(ctx, TTLDelete, "sidebar", nil, render)
	if renders.Load() != 2 {
		t.Fatalf("TTLDelete must force a re-render: renders=%d", renders.Load())
	}
	// Nothing was stored, so the next regular call starts cold.
	cc.Fragment(ctx, 0, "sidebar", nil, render)
	if renders.Load() != 3 {
		t.Fatalf("TTLDelete must not store its render: renders=%d", renders.Load())
	}
	cc.Fragment(ctx, 0, "sidebar", nil, render)
	if renders.Load() != 3 {
		t.Fatalf("regular call after the reset must cache: renders=%d", renders.Load())
	}
}

func TestDeleteFragment(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemStore(), nil)

	var renders atomic.Int64
	render := func() (string, error) {
		renders.Add(1)
		return "x", nil
	}

	cc.Fragment(ctx, 0, "sidebar", []string{"u1"}, render)
	if err := cc.DeleteFragment(ctx, "sidebar", "u1"); err != nil {
		t.Fatalf("DeleteFragment: %v", err)
	}
	cc.Fragment(ctx, 0, "sidebar", []string{"u1"}, render)
	if renders.Load() != 2 {
		t.Fatalf("deleted fragment must re-render: renders=%d", renders.Load())
	}
}
