// Package null is a store that caches nothing. Every read misses and every
// write succeeds silently. Deploying it turns the cache layer into a no-op,
// which is why constructing a Cache over it emits a startup warning unless
// suppressed.
package null

import (
	"context"
	"time"

	st "github.com/keyvern/memocache/store"
)

func init() {
	st.Register("null", func(st.Config) (st.Store, error) { return Store{}, nil })
}

type Store struct{}

var _ st.Store = Store{}

func (Store) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Store) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (Store) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (Store) Delete(context.Context, string) (bool, error) { return true, nil }
func (Store) GetMany(_ context.Context, keys ...string) ([][]byte, error) {
	return make([][]byte, len(keys)), nil
}
func (Store) SetMany(context.Context, map[string][]byte, time.Duration) (bool, error) {
	return true, nil
}
func (Store) DeleteMany(_ context.Context, _ bool, keys ...string) ([]string, error) {
	return keys, nil
}
func (Store) Has(context.Context, string) (bool, error)          { return false, nil }
func (Store) Clear(context.Context) (bool, error)                { return true, nil }
func (Store) Incr(context.Context, string, int64) (int64, error) { return 0, st.ErrNotSupported }
func (Store) Decr(context.Context, string, int64) (int64, error) { return 0, st.ErrNotSupported }
func (Store) Close(context.Context) error                        { return nil }
