// Package asynchook moves hook delivery off the store lock. Events are
// queued to a worker pool; when the queue is full they are dropped.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{FetchEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
//
//	store, _ := tagcache.New(tagcache.Options{Executor: client, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tagcache"
)

type Hooks struct {
	inner   tagcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(inner tagcache.Hooks, workers, qlen int) *Hooks {
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

// Close drains the queue and stops the workers. Close the store first:
// events raised after Close are not delivered.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were lost to a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on closed queue
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k tagcache.Key, g uint64) {
	h.try(func() { h.inner.FetchStarted(k, g) })
}
func (h *Hooks) FetchDiscarded(k tagcache.Key, g uint64, r string) {
	h.try(func() { h.inner.FetchDiscarded(k, g, r) })
}
func (h *Hooks) FetchFailed(k tagcache.Key, err error) {
	h.try(func() { h.inner.FetchFailed(k, err) })
}
func (h *Hooks) EntryEvicted(k tagcache.Key, r string) {
	h.try(func() { h.inner.EntryEvicted(k, r) })
}
func (h *Hooks) Invalidated(tags []tagcache.Tag, n int) {
	h.try(func() { h.inner.Invalidated(tags, n) })
}
func (h *Hooks) PatchRolledBack(id string, k tagcache.Key) {
	h.try(func() { h.inner.PatchRolledBack(id, k) })
}
func (h *Hooks) RollbackDeferred(id string, k tagcache.Key) {
	h.try(func() { h.inner.RollbackDeferred(id, k) })
}
func (h *Hooks) GenStoreError(k tagcache.Key, err error) {
	h.try(func() { h.inner.GenStoreError(k, err) })
}
