package filesystem

import (
	"context"
	"encoding/binary"
	"os"
	"strconv"
	"testing"
	"time"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// expire rewrites an entry's on-disk header so it lapsed in the past.
func expire(t *testing.T, s *Store, key string) {
	t.Helper()
	fn := s.filename(key)
	b, err := os.ReadFile(fn)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	binary.BigEndian.PutUint64(b[:8], uint64(time.Now().Add(-time.Hour).Unix()))
	if err := os.WriteFile(fn, b, 0o600); err != nil {
		t.Fatalf("rewrite entry: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("miss expected: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Set(ctx, "k", []byte("v"), 0); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get: ok=%v err=%v v=%q", ok, err, v)
	}
	if existed, err := s.Delete(ctx, "k"); err != nil || !existed {
		t.Fatalf("Delete: existed=%v err=%v", existed, err)
	}
	if existed, _ := s.Delete(ctx, "k"); existed {
		t.Fatal("second delete must report absence")
	}
}

func TestEmptyValueSurvives(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "k", nil, 0)
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || len(v) != 0 {
		t.Fatalf("empty value: ok=%v err=%v v=%q", ok, err, v)
	}
}

func TestExpiredEntryIsMissAndRemoved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "k", []byte("v"), time.Hour)
	expire(t, s, "k")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expired entry must miss")
	}
	if _, err := os.Stat(s.filename("k")); !os.IsNotExist(err) {
		t.Fatal("expired entry file must be removed on read")
	}
}

func TestHasRespectsExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "k", []byte("v"), time.Hour)
	if ok, _ := s.Has(ctx, "k"); !ok {
		t.Fatal("live entry expected")
	}
	expire(t, s, "k")
	if ok, _ := s.Has(ctx, "k"); ok {
		t.Fatal("Has must report expired entries as absent")
	}
}

func TestAddOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	if ok, _ := s.Add(ctx, "k", []byte("a"), 0); !ok {
		t.Fatal("first Add must succeed")
	}
	if ok, _ := s.Add(ctx, "k", []byte("b"), 0); ok {
		t.Fatal("second Add must be rejected")
	}
	v, _, _ := s.Get(ctx, "k")
	if string(v) != "a" {
		t.Fatalf("Add overwrote: %q", v)
	}
}

func TestTornFileTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	if err := os.WriteFile(s.filename("k"), []byte("abc"), 0o600); err != nil {
		t.Fatalf("plant torn file: %v", err)
	}
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("torn file: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(s.filename("k")); !os.IsNotExist(err) {
		t.Fatal("torn file must be dropped")
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	if n, err := s.Incr(ctx, "c", 3); err != nil || n != 3 {
		t.Fatalf("Incr: n=%d err=%v", n, err)
	}
	if n, err := s.Decr(ctx, "c", 1); err != nil || n != 2 {
		t.Fatalf("Decr: n=%d err=%v", n, err)
	}
}

func TestClearRemovesEntriesOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, Config{Dir: dir})

	s.Set(ctx, "a", []byte("1"), 0)
	s.Set(ctx, "b", []byte("2"), 0)
	if ok, err := s.Clear(ctx); err != nil || !ok {
		t.Fatalf("Clear: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("Clear must drop entries")
	}
	if got := len(s.listEntries()); got != 0 {
		t.Fatalf("Clear left %d entries", got)
	}
}

func TestThresholdPrunes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{Threshold: 10})

	for i := 0; i < 60; i++ {
		s.Set(ctx, "k"+strconv.Itoa(i), []byte("v"), 0)
	}
	if got := len(s.listEntries()); got > 50 {
		t.Fatalf("prune inactive: %d entries", got)
	}
}

func TestCountRecoveredOnReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, Config{Dir: dir})
	s.Set(ctx, "a", []byte("1"), 0)
	s.Set(ctx, "b", []byte("2"), 0)

	s2 := newTestStore(t, Config{Dir: dir})
	if got := s2.fileCount(); got != 2 {
		t.Fatalf("reopened store counted %d entries, want 2", got)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("missing dir must error")
	}
}

func TestModeApplied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{Mode: 0o640})
	s.Set(ctx, "k", []byte("v"), 0)

	fi, err := os.Stat(s.filename("k"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o640 {
		t.Fatalf("entry mode = %o", perm)
	}
}
