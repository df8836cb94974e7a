package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/tagcache"
)

type countHooks struct {
	tagcache.NopHooks
	mu      sync.Mutex
	started int
	block   chan struct{}
}

func (c *countHooks) FetchStarted(tagcache.Key, uint64) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func TestDeliversThenDrainsOnClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.FetchStarted("ads:1", uint64(i))
	}
	h.Close()
	if inner.started != 10 || h.Dropped() != 0 {
		t.Fatalf("delivered=%d dropped=%d", inner.started, h.Dropped())
	}

	h.FetchStarted("ads:1", 11) // after Close
	if h.Dropped() != 1 {
		t.Fatalf("event after Close not counted as dropped")
	}
	h.Close()
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)
	// one event held by the worker, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		h.FetchStarted("ads:1", uint64(i))
	}
	if h.Dropped() < 3 {
		t.Fatalf("expected at least 3 drops, got %d", h.Dropped())
	}
	close(inner.block)
	h.Close()
}
