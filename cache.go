package tagcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/tagcache/genstore"
	"github.com/unkn0wn-root/tagcache/transport"
)

const (
	defaultGracePeriod     = 60 * time.Second
	defaultGenRetention    = time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

// Store is the process-wide cache. Create one at startup with New; Reset
// empties it between tests and Close releases it.
type Store struct {
	exec      Executor
	log       Logger
	hooks     Hooks
	clock     clockwork.Clock
	gens      gen.GenStore
	ownsGens  bool
	grace     time.Duration
	staleTime time.Duration
	tagFuncs  map[string]TagFunc

	// background fetches and writes run under ctx; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	entries map[Key]*entry
	graph   *tagGraph
	pending map[string]*patchRecord
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Entries          int
	Subscribers      int
	Tags             int
	InFlight         int
	PendingMutations int
}

func newStore(opts Options) (*Store, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("tagcache: executor is required")
	}

	s := &Store{
		exec:    opts.Executor,
		entries: make(map[Key]*entry),
		graph:   newTagGraph(),
		pending: make(map[string]*patchRecord),
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.clock = coalesce[clockwork.Clock](opts.Clock, clockwork.NewRealClock())
	s.grace = coalesce[time.Duration](opts.GracePeriod, defaultGracePeriod)
	s.staleTime = opts.StaleTime

	s.tagFuncs = make(map[string]TagFunc, len(opts.Tags))
	for res, fn := range opts.Tags {
		s.tagFuncs[res] = fn
	}

	if opts.GenStore != nil {
		s.gens = opts.GenStore
	} else {
		retention := coalesce[time.Duration](opts.GenRetention, defaultGenRetention)
		sweep := coalesce[time.Duration](opts.CleanupInterval, defaultCleanupInterval)
		s.gens = gen.NewLocal(s.clock, sweep, retention)
		s.ownsGens = true
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Subscribe watches the list query of resource with args.
func (s *Store) Subscribe(resource string, args Args) (Snapshot, *Subscription, error) {
	return s.SubscribeQuery(Query{Resource: resource, Operation: OpList, Args: args})
}

// SubscribeQuery returns the current snapshot of q and a handle that keeps it
// cached. A missing entry is created in Loading and fetched; a cached Success
// is returned without a request; Stale or Error data is returned as-is while
// a background refetch runs.
func (s *Store) SubscribeQuery(q Query) (Snapshot, *Subscription, error) {
	if q.Operation == "" {
		q.Operation = OpList
	}
	key, err := DeriveKey(q)
	if err != nil {
		return Snapshot{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, nil, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key, q)
		s.entries[key] = e
		s.startFetchLocked(e, false)
	} else if s.needsRefetchLocked(e) {
		s.startFetchLocked(e, false)
	}
	sub := s.mountLocked(e)
	return e.snapshot(), sub, nil
}

// Refetch issues a new request for key whatever its status. A request
// already in flight is superseded: its response will be discarded.
func (s *Store) Refetch(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	s.startFetchLocked(e, true)
	return nil
}

// Peek returns the snapshot of key without subscribing.
// A missing key yields an Uninitialized snapshot.
func (s *Store) Peek(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.snapshot()
	}
	return Snapshot{Key: key, Status: StatusUninitialized}
}

// Keys returns the cached keys, sorted.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Entries:          len(s.entries),
		Tags:             s.graph.tagCount(),
		PendingMutations: len(s.pending),
	}
	for _, e := range s.entries {
		st.Subscribers += e.subscribers
		if e.fetching {
			st.InFlight++
		}
	}
	return st
}

// Reset drops every entry, tag and pending patch record. Responses still in
// flight are discarded when they land. Meant for test isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.entries
	s.entries = make(map[Key]*entry)
	s.graph = newTagGraph()
	s.pending = make(map[string]*patchRecord)
	for _, e := range old {
		s.stopGraceLocked(e)
		e.notify()
	}
	s.log.Debug("store reset", Fields{"entries": len(old)})
}

// Close cancels background work, waits for it until ctx expires and closes
// the GenStore if the store created it.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, e := range s.entries {
		s.stopGraceLocked(e)
	}
	s.mu.Unlock()

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.ownsGens {
		return s.gens.Close(ctx)
	}
	return nil
}

func (s *Store) needsRefetchLocked(e *entry) bool {
	if e.fetching {
		return false
	}
	switch e.status {
	case StatusUninitialized, StatusStale, StatusError:
		return true
	case StatusSuccess:
		return s.staleTime > 0 && s.clock.Since(e.lastFetchedAt) >= s.staleTime
	}
	return false
}

// startFetchLocked bumps the key's generation and sends a request in the
// background. fresh bypasses read coalescing in the executor.
func (s *Store) startFetchLocked(e *entry, fresh bool) {
	g, err := s.gens.Bump(s.ctx, string(e.key))
	if err != nil {
		s.hooks.GenStoreError(e.key, err)
		s.log.Error("generation bump failed", Fields{"key": e.key, "err": err})
		e.status = StatusError
		e.err = fmt.Errorf("tagcache: generation bump: %w", err)
		e.fetching = false
		e.notify()
		return
	}

	e.gen = g
	e.fetching = true
	if e.hasData {
		e.status = StatusStaleRevalidating
	} else {
		e.status = StatusLoading
	}
	e.notify()
	s.hooks.FetchStarted(e.key, g)

	req := transport.Request{
		Resource:  e.query.Resource,
		Operation: e.query.Operation,
		Params:    e.query.Args,
		Fresh:     fresh,
	}
	s.wg.Add(1)
	go s.runFetch(e.key, g, req)
}

func (s *Store) runFetch(key Key, g uint64, req transport.Request) {
	defer s.wg.Done()
	res, err := s.exec.Do(s.ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyFetchLocked(key, g, res, err)
}

// applyFetchLocked writes a response into its entry if, and only if, the
// entry still exists and no newer request was issued for it since.
func (s *Store) applyFetchLocked(key Key, g uint64, res transport.Result, err error) {
	e, ok := s.entries[key]
	if !ok {
		s.hooks.FetchDiscarded(key, g, "evicted")
		return
	}
	cur, gerr := s.gens.Snapshot(s.ctx, string(key))
	if gerr != nil {
		s.hooks.GenStoreError(key, gerr)
		s.hooks.FetchDiscarded(key, g, "gen_error")
		return
	}
	if cur != g || e.gen != g {
		s.hooks.FetchDiscarded(key, g, "superseded")
		s.log.Debug("superseded response discarded", Fields{"key": key, "gen": g, "current": cur})
		return
	}

	e.fetching = false
	if err != nil {
		e.status = StatusError
		e.err = err
		s.hooks.FetchFailed(key, err)
		s.log.Warn("fetch failed", Fields{"key": key, "err": err})
	} else {
		tags := s.tagsFor(e.query, res.Data)
		s.graph.register(key, tags)
		e.tags = tags
		e.data = s.rebaseLocked(e, res.Data)
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
		e.lastFetchedAt = s.clock.Now()
	}
	e.notify()

	if e.subscribers == 0 && !s.closed {
		s.armGraceLocked(e)
	}
}

func (s *Store) tagsFor(q Query, data any) []Tag {
	if fn, ok := s.tagFuncs[q.Resource]; ok && fn != nil {
		return fn(q, data)
	}
	return []Tag{ListTag(q.Resource)}
}

// rebaseLocked puts the still-pending optimistic patches back on top of fresh
// server data. Resolved layers are dropped: the server data supersedes them.
func (s *Store) rebaseLocked(e *entry, server any) any {
	if len(e.layers) == 0 {
		return server
	}
	data := server
	kept := make([]*layer, 0, len(e.layers))
	for _, l := range e.layers {
		if l.state != layerPending {
			continue
		}
		l.prev = data
		if next, err := l.patch(data); err == nil {
			data = next
		}
		kept = append(kept, l)
	}
	e.layers = kept
	return data
}

func (s *Store) evictLocked(e *entry, reason string) {
	s.stopGraceLocked(e)
	s.graph.unregister(e.key)
	delete(s.entries, e.key)
	s.hooks.EntryEvicted(e.key, reason)
	s.log.Debug("entry evicted", Fields{"key": e.key, "reason": reason})
}
