// Package filesystem stores each entry in its own file under a dedicated
// directory. The store must be the only user of that directory: pruning
// deletes files it does not recognize as live entries.
//
// Entry layout on disk: 8-byte big-endian absolute expiry (unix seconds,
// 0 = never) followed by the payload. Writes go through a temp file and a
// rename so readers never observe a torn entry.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	st "github.com/keyvern/memocache/store"
)

const (
	tmpSuffix = ".__memocache_tmp"
	countFile = "__memocache_count"
)

func init() {
	st.Register("filesystem", func(cfg st.Config) (st.Store, error) {
		return New(Config{Dir: cfg.Dir, Threshold: cfg.Threshold, Mode: cfg.FileMode})
	})
}

type Config struct {
	// Dir is the cache directory. Required; created when missing.
	Dir string
	// Threshold caps the number of entry files; 0 => 500, negative => no cap.
	Threshold int
	// Mode is the permission for entry files; 0 => 0600.
	Mode fs.FileMode
}

type Store struct {
	dir       string
	threshold int
	mode      fs.FileMode

	// countMu guards the entry-count bookkeeping file; adjMu serializes
	// read-modify-write counter updates.
	countMu sync.Mutex
	adjMu   sync.Mutex
}

var _ st.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("filesystem: cache dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, err
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 500
	}
	if threshold < 0 {
		threshold = 0
	}
	mode := cfg.Mode
	if mode == 0 {
		mode = 0o600
	}

	s := &Store{dir: cfg.Dir, threshold: threshold, mode: mode}
	if s.threshold != 0 {
		s.writeCount(len(s.listEntries()))
	}
	return s, nil
}

func (s *Store) filename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(s.filename(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(b) < 8 {
		// torn or foreign file; treat as miss and drop it
		_ = os.Remove(s.filename(key))
		return nil, false, nil
	}
	exp := int64(binary.BigEndian.Uint64(b[:8]))
	if exp != 0 && exp < time.Now().Unix() {
		_, _ = s.Delete(context.Background(), key)
		return nil, false, nil
	}
	return b[8:], true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	existed, _ := s.Has(ctx, key)
	if !existed {
		s.prune()
	}
	if err := s.writeFile(s.filename(key), value, ttl); err != nil {
		return false, err
	}
	if !existed {
		s.bumpCount(1)
	}
	return true, nil
}

func (s *Store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ok, _ := s.Has(ctx, key); ok {
		return false, nil
	}
	return s.Set(ctx, key, value, ttl)
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	err := os.Remove(s.filename(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	s.bumpCount(-1)
	return true, nil
}

func (s *Store) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error) {
	for k, v := range items {
		if _, err := s.Set(ctx, k, v, ttl); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) DeleteMany(ctx context.Context, continueOnError bool, keys ...string) ([]string, error) {
	deleted := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := s.Delete(ctx, k)
		if err != nil {
			if continueOnError {
				continue
			}
			return deleted, err
		}
		if ok {
			deleted = append(deleted, k)
		}
	}
	return deleted, nil
}

func (s *Store) Has(_ context.Context, key string) (bool, error) {
	b, err := os.ReadFile(s.filename(key))
	if err != nil || len(b) < 8 {
		return false, nil
	}
	exp := int64(binary.BigEndian.Uint64(b[:8]))
	return exp == 0 || exp >= time.Now().Unix(), nil
}

func (s *Store) Clear(_ context.Context) (bool, error) {
	ok := true
	for _, fn := range s.listEntries() {
		if err := os.Remove(fn); err != nil {
			ok = false
		}
	}
	if ok {
		s.writeCount(0)
	} else {
		s.writeCount(len(s.listEntries()))
	}
	return ok, nil
}

func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(ctx, key, delta)
}

func (s *Store) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.adjust(ctx, key, -delta)
}

// adjust is not atomic across processes; the filesystem store targets
// single-node deployments where that is acceptable.
func (s *Store) adjust(ctx context.Context, key string, delta int64) (int64, error) {
	s.adjMu.Lock()
	defer s.adjMu.Unlock()
	var cur int64
	if b, ok, err := s.Get(ctx, key); err != nil {
		return 0, err
	} else if ok {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	if _, err := s.Set(ctx, key, []byte(strconv.FormatInt(cur, 10)), 0); err != nil {
		return 0, err
	}
	return cur, nil
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) writeFile(filename string, value []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).Unix()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(exp))
	copy(buf[8:], value)

	tmp, err := os.CreateTemp(s.dir, "*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// listEntries returns the full paths of live entry files, skipping temp
// files and bookkeeping.
func (s *Store) listEntries() []string {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || name == countFile || strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		out = append(out, filepath.Join(s.dir, name))
	}
	return out
}

// prune removes expired entries and, while still above threshold, every third
// survivor. Cheap and unfair on purpose; the store never promises an
// eviction policy.
func (s *Store) prune() {
	if s.threshold == 0 || s.fileCount() <= s.threshold {
		return
	}
	now := time.Now().Unix()
	for idx, fn := range s.listEntries() {
		remove := idx%3 == 0
		if !remove {
			if b, err := os.ReadFile(fn); err == nil && len(b) >= 8 {
				exp := int64(binary.BigEndian.Uint64(b[:8]))
				remove = exp != 0 && exp <= now
			}
		}
		if remove {
			_ = os.Remove(fn)
		}
	}
	s.writeCount(len(s.listEntries()))
}

func (s *Store) fileCount() int {
	b, err := os.ReadFile(filepath.Join(s.dir, countFile))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return n
}

func (s *Store) bumpCount(delta int) {
	if s.threshold == 0 {
		return
	}
	s.countMu.Lock()
	s.writeCount(s.fileCount() + delta)
	s.countMu.Unlock()
}

func (s *Store) writeCount(n int) {
	if s.threshold == 0 {
		return
	}
	if n < 0 {
		n = 0
	}
	_ = os.WriteFile(filepath.Join(s.dir, countFile), []byte(strconv.Itoa(n)), 0o600)
}
