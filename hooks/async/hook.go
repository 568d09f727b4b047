// usage:
//
// import (
//
//	"github.com/keyvern/memocache"
//	asynchook "github.com/keyvern/memocache/hooks/async"
//
// )
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := memocache.New(memocache.Config{
//	    Type:  "redis",
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/keyvern/memocache"
)

type Hooks struct {
	inner memocache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(inner memocache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) BackendError(op, key string, err error) {
	h.try(func() { h.inner.BackendError(op, key, err) })
}
func (h *Hooks) SelfHeal(key, reason string) { h.try(func() { h.inner.SelfHeal(key, reason) }) }
func (h *Hooks) VersionRotated(ns string)    { h.try(func() { h.inner.VersionRotated(ns) }) }
func (h *Hooks) Bypassed(ns, reason string) {
	h.try(func() { h.inner.Bypassed(ns, reason) })
}
