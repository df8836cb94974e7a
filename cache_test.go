package tagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/tagcache/transport"
)

// fakeExec routes every request to fn and counts calls per resource.operation.
type fakeExec struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, req transport.Request) (transport.Result, error)
}

func newFakeExec(fn func(ctx context.Context, req transport.Request) (transport.Result, error)) *fakeExec {
	return &fakeExec{calls: make(map[string]int), fn: fn}
}

func (f *fakeExec) Do(ctx context.Context, req transport.Request) (transport.Result, error) {
	f.mu.Lock()
	f.calls[req.Resource+"."+req.Operation]++
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeExec) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// recHooks records the events tests assert on.
type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []string
}

func (h *recHooks) add(ev string) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recHooks) has(ev string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == ev {
			return true
		}
	}
	return false
}

func (h *recHooks) FetchDiscarded(_ Key, _ uint64, reason string) { h.add("discarded:" + reason) }
func (h *recHooks) EntryEvicted(_ Key, reason string)             { h.add("evicted:" + reason) }
func (h *recHooks) PatchRolledBack(string, Key)                   { h.add("rolled_back") }
func (h *recHooks) RollbackDeferred(string, Key)                  { h.add("deferred") }

func newTestStore(t *testing.T, exec Executor, optsOpt func(*Options)) *Store {
	t.Helper()
	opts := Options{
		Executor: exec,
		Clock:    clockwork.NewFakeClock(),
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func waitSettled(t *testing.T, sub *Subscription) (Snapshot, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := sub.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("timed out waiting for %s to settle (status %s)", sub.Key(), snap.Status)
	}
	return snap, err
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustSubscribe(t *testing.T, s *Store, resource string, args Args) (Snapshot, *Subscription) {
	t.Helper()
	snap, sub, err := s.Subscribe(resource, args)
	if err != nil {
		t.Fatalf("Subscribe(%s, %v): %v", resource, args, err)
	}
	return snap, sub
}

func wait(ctx context.Context, gate <-chan struct{}) error {
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSubscribeSharesOneRequest(t *testing.T) {
	gate := make(chan struct{})
	exec := newFakeExec(func(ctx context.Context, req transport.Request) (transport.Result, error) {
		if err := wait(ctx, gate); err != nil {
			return transport.Result{}, err
		}
		return transport.Result{Data: []int{1, 2}}, nil
	})
	s := newTestStore(t, exec, nil)

	var subs []*Subscription
	for i := 0; i < 5; i++ {
		// int and int64 must derive the same key
		args := Args{"page": 1}
		if i%2 == 1 {
			args = Args{"page": int64(1)}
		}
		snap, sub := mustSubscribe(t, s, "ads", args)
		if snap.Status != StatusLoading {
			t.Fatalf("subscriber %d: status %s, want loading", i, snap.Status)
		}
		subs = append(subs, sub)
	}
	if st := s.Stats(); st.Entries != 1 || st.Subscribers != 5 || st.InFlight != 1 {
		t.Fatalf("unexpected stats while loading: %+v", st)
	}

	close(gate)
	for _, sub := range subs {
		snap, err := waitSettled(t, sub)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if diff := cmp.Diff([]int{1, 2}, snap.Data); diff != "" {
			t.Fatalf("data mismatch (-want +got):\n%s", diff)
		}
	}
	if n := exec.count("ads.list"); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}

	// Success entries are served from cache.
	snap, _ := mustSubscribe(t, s, "ads", Args{"page": 1})
	if snap.Status != StatusSuccess || exec.count("ads.list") != 1 {
		t.Fatalf("cached subscribe: status=%s requests=%d", snap.Status, exec.count("ads.list"))
	}
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	var n atomic.Int32
	exec := newFakeExec(func(ctx context.Context, req transport.Request) (transport.Result, error) {
		if n.Add(1) == 1 {
			if err := wait(ctx, gate); err != nil {
				return transport.Result{}, err
			}
			return transport.Result{Data: "old"}, nil
		}
		return transport.Result{Data: "new"}, nil
	})
	hooks := &recHooks{}
	s := newTestStore(t, exec, func(o *Options) { o.Hooks = hooks })

	_, sub := mustSubscribe(t, s, "faq", nil)
	if err := sub.Refetch(); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	snap, err := waitSettled(t, sub)
	if err != nil || snap.Data != "new" {
		t.Fatalf("after refetch: data=%v err=%v", snap.Data, err)
	}

	close(gate)
	eventually(t, "superseded discard", func() bool { return hooks.has("discarded:superseded") })
	if got := sub.Snapshot(); got.Data != "new" || got.Status != StatusSuccess {
		t.Fatalf("late response overwrote entry: %+v", got)
	}
}

func TestFetchErrorKeepsData(t *testing.T) {
	boom := errors.New("boom")
	var n atomic.Int32
	exec := newFakeExec(func(context.Context, transport.Request) (transport.Result, error) {
		if n.Add(1) == 1 {
			return transport.Result{Data: []int{1}}, nil
		}
		return transport.Result{}, &transport.NetworkError{Method: "GET", URL: "x", Err: boom}
	})
	s := newTestStore(t, exec, nil)

	_, sub := mustSubscribe(t, s, "orders", Args{"role": "user"})
	if _, err := waitSettled(t, sub); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if err := sub.Refetch(); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	snap, err := waitSettled(t, sub)
	var ne *NetworkError
	if !errors.As(err, &ne) || !errors.Is(err, boom) {
		t.Fatalf("expected NetworkError wrapping boom, got %v", err)
	}
	if snap.Status != StatusError || !snap.HasData {
		t.Fatalf("status=%s hasData=%v", snap.Status, snap.HasData)
	}
	if diff := cmp.Diff([]int{1}, snap.Data); diff != "" {
		t.Fatalf("data lost on error (-want +got):\n%s", diff)
	}

	// An errored entry is refetched on the next mount.
	_, sub2 := mustSubscribe(t, s, "orders", Args{"role": "user"})
	_, _ = waitSettled(t, sub2)
	if got := exec.count("orders.list"); got != 3 {
		t.Fatalf("expected remount to refetch, requests=%d", got)
	}
}

func TestGracePeriodReuseAndEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := newFakeExec(func(context.Context, transport.Request) (transport.Result, error) {
		return transport.Result{Data: "ok"}, nil
	})
	hooks := &recHooks{}
	s := newTestStore(t, exec, func(o *Options) {
		o.Clock = clock
		o.Hooks = hooks
		o.GracePeriod = time.Minute
	})

	_, sub := mustSubscribe(t, s, "providers", nil)
	if _, err := waitSettled(t, sub); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // no-op

	clock.Advance(59 * time.Second)
	snap, sub := mustSubscribe(t, s, "providers", nil)
	if snap.Status != StatusSuccess || exec.count("providers.list") != 1 {
		t.Fatalf("resubscribe within grace: status=%s requests=%d", snap.Status, exec.count("providers.list"))
	}

	// The earlier timer was cancelled by the remount.
	clock.Advance(time.Minute)
	if len(s.Keys()) != 1 {
		t.Fatalf("entry evicted while subscribed")
	}

	sub.Unsubscribe()
	clock.Advance(time.Minute)
	eventually(t, "grace eviction", func() bool { return len(s.Keys()) == 0 })
	if !hooks.has("evicted:grace_expired") {
		t.Fatalf("missing grace_expired eviction event")
	}

	_, sub = mustSubscribe(t, s, "providers", nil)
	_, _ = waitSettled(t, sub)
	if got := exec.count("providers.list"); got != 2 {
		t.Fatalf("expected a new request after eviction, got %d", got)
	}
}

func TestInFlightFetchSurvivesGraceExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gate := make(chan struct{})
	exec := newFakeExec(func(ctx context.Context, req transport.Request) (transport.Result, error) {
		if err := wait(ctx, gate); err != nil {
			return transport.Result{}, err
		}
		return transport.Result{Data: "v"}, nil
	})
	hooks := &recHooks{}
	s := newTestStore(t, exec, func(o *Options) {
		o.Clock = clock
		o.Hooks = hooks
		o.GracePeriod = time.Minute
	})

	_, sub := mustSubscribe(t, s, "customers", nil)
	key := sub.Key()
	sub.Unsubscribe()
	clock.Advance(2 * time.Minute)
	if len(s.Keys()) != 1 {
		t.Fatalf("entry evicted with a fetch in flight")
	}

	close(gate)
	eventually(t, "response applied", func() bool { return s.Peek(key).Status == StatusSuccess })
	if hooks.has("evicted:grace_expired") {
		t.Fatalf("entry evicted before its response landed")
	}

	snap, sub := mustSubscribe(t, s, "customers", nil)
	if snap.Status != StatusSuccess || snap.Data != "v" || exec.count("customers.list") != 1 {
		t.Fatalf("resubscribe: status=%s data=%v requests=%d", snap.Status, snap.Data, exec.count("customers.list"))
	}

	// The landing response re-armed the grace timer; it runs again once unobserved.
	sub.Unsubscribe()
	clock.Advance(time.Minute)
	eventually(t, "grace eviction", func() bool { return len(s.Keys()) == 0 })
}

func TestStaleTimeRefetchesOnMount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := newFakeExec(func(context.Context, transport.Request) (transport.Result, error) {
		return transport.Result{Data: 1}, nil
	})
	s := newTestStore(t, exec, func(o *Options) {
		o.Clock = clock
		o.StaleTime = 30 * time.Second
	})

	_, sub := mustSubscribe(t, s, "bids", nil)
	_, _ = waitSettled(t, sub)

	_, again := mustSubscribe(t, s, "bids", nil)
	_, _ = waitSettled(t, again)
	if got := exec.count("bids.list"); got != 1 {
		t.Fatalf("fresh entry refetched: %d", got)
	}

	clock.Advance(31 * time.Second)
	snap, third := mustSubscribe(t, s, "bids", nil)
	if snap.Status != StatusStaleRevalidating {
		t.Fatalf("status=%s, want stale_revalidating", snap.Status)
	}
	_, _ = waitSettled(t, third)
	if got := exec.count("bids.list"); got != 2 {
		t.Fatalf("aged entry not refetched: %d", got)
	}
}

type failingGenStore struct{ bumpErr error }

func (s *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (s *failingGenStore) Bump(context.Context, string) (uint64, error)     { return 0, s.bumpErr }
func (s *failingGenStore) Cleanup(time.Duration)                            {}
func (s *failingGenStore) Close(context.Context) error                      { return nil }

func TestGenStoreFailureSurfacesAsError(t *testing.T) {
	bumpFail := errors.New("bump failed")
	exec := newFakeExec(func(context.Context, transport.Request) (transport.Result, error) {
		return transport.Result{}, nil
	})
	s := newTestStore(t, exec, func(o *Options) { o.GenStore = &failingGenStore{bumpErr: bumpFail} })

	snap, _, err := s.Subscribe("cms", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if snap.Status != StatusError || !errors.Is(snap.Err, bumpFail) {
		t.Fatalf("status=%s err=%v", snap.Status, snap.Err)
	}
	if exec.count("cms.list") != 0 {
		t.Fatalf("request sent without a generation")
	}
}

func TestRefetchUnknownKey(t *testing.T) {
	s := newTestStore(t, newFakeExec(nil), nil)
	if err := s.Refetch("ads:nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if snap := s.Peek("ads:nope"); snap.Status != StatusUninitialized {
		t.Fatalf("Peek of missing key: %s", snap.Status)
	}
}

func TestResetDropsEverything(t *testing.T) {
	gate := make(chan struct{})
	exec := newFakeExec(func(ctx context.Context, req transport.Request) (transport.Result, error) {
		if req.Operation == OpList {
			return transport.Result{Data: []int{1}}, nil
		}
		if err := wait(ctx, gate); err != nil {
			return transport.Result{}, err
		}
		return transport.Result{}, nil
	})
	hooks := &recHooks{}
	s := newTestStore(t, exec, func(o *Options) { o.Hooks = hooks })

	_, sub := mustSubscribe(t, s, "ads", nil)
	_, _ = waitSettled(t, sub)
	m := s.Execute(context.Background(), MutationRequest{
		Resource:    "ads",
		Operation:   "delete",
		Optimistic:  func(any) (any, error) { return []int{}, nil },
		Invalidates: []Tag{ListTag("ads")},
	})
	if st := s.Stats(); st.PendingMutations != 1 {
		t.Fatalf("pending mutations = %d", st.PendingMutations)
	}

	s.Reset()
	if diff := cmp.Diff(Stats{}, s.Stats()); diff != "" {
		t.Fatalf("stats after Reset (-want +got):\n%s", diff)
	}

	close(gate)
	if _, err := m.Wait(context.Background()); err != nil {
		t.Fatalf("mutation after reset: %v", err)
	}
	sub.Unsubscribe()
	if len(s.Keys()) != 0 {
		t.Fatalf("keys reappeared after reset: %v", s.Keys())
	}
}

func TestCloseRejectsNewWork(t *testing.T) {
	exec := newFakeExec(func(context.Context, transport.Request) (transport.Result, error) {
		return transport.Result{}, nil
	})
	s, err := New(Options{Executor: exec, Clock: clockwork.NewFakeClock()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := s.Subscribe("ads", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close: %v", err)
	}
	if _, err := s.Invalidate(ListTag("ads")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Invalidate after Close: %v", err)
	}
	_, err = s.Mutate(ctx, MutationRequest{Resource: "ads", Operation: "add"})
	var me *MutationError
	if !errors.As(err, &me) || !errors.Is(err, ErrClosed) {
		t.Fatalf("Mutate after Close: %v", err)
	}
}

func TestNewRequiresExecutor(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without executor")
	}
}
