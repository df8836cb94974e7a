package tagcache

import "context"

// Subscription is one consumer watching one key. It keeps the entry alive
// until Unsubscribe.
type Subscription struct {
	store   *Store
	key     Key
	changed chan struct{}
	done    bool // guarded by store.mu
}

func (sub *Subscription) Key() Key { return sub.key }

// Snapshot returns the entry's current state.
func (sub *Subscription) Snapshot() Snapshot { return sub.store.Peek(sub.key) }

// Changed fires after the entry changed. Wake-ups coalesce: read Snapshot
// after receiving, not before.
func (sub *Subscription) Changed() <-chan struct{} { return sub.changed }

// Wait blocks until no request for the entry is in flight and returns the
// snapshot at that point. It returns the entry's error when the fetch failed.
func (sub *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	for {
		snap := sub.Snapshot()
		if !snap.Status.Fetching() {
			if snap.Status == StatusError {
				return snap, snap.Err
			}
			return snap, nil
		}
		select {
		case <-sub.changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Refetch forces a new request for the subscribed key.
func (sub *Subscription) Refetch() error { return sub.store.Refetch(sub.key) }

// Unsubscribe releases the entry. Calling it more than once is a no-op.
func (sub *Subscription) Unsubscribe() {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.done {
		return
	}
	sub.done = true
	if e, ok := s.entries[sub.key]; ok {
		s.unmountLocked(e, sub)
	}
}

func (sub *Subscription) wake() {
	select {
	case sub.changed <- struct{}{}:
	default:
	}
}

// mountLocked adds a subscriber, cancelling a pending grace eviction.
func (s *Store) mountLocked(e *entry) *Subscription {
	s.stopGraceLocked(e)
	sub := &Subscription{store: s, key: e.key, changed: make(chan struct{}, 1)}
	e.subs[sub] = struct{}{}
	e.subscribers++
	return sub
}

func (s *Store) unmountLocked(e *entry, sub *Subscription) {
	if _, ok := e.subs[sub]; !ok {
		return
	}
	delete(e.subs, sub)
	if e.subscribers > 0 {
		e.subscribers--
	}
	if e.subscribers == 0 && !s.closed {
		s.armGraceLocked(e)
	}
}

// armGraceLocked schedules eviction of an unobserved entry. graceSeq tells a
// timer that fired late apart from the current one.
func (s *Store) armGraceLocked(e *entry) {
	s.stopGraceLocked(e)
	e.graceSeq++
	seq, key := e.graceSeq, e.key
	e.grace = s.clock.AfterFunc(s.grace, func() { s.graceExpired(key, seq) })
}

func (s *Store) stopGraceLocked(e *entry) {
	if e.grace != nil {
		e.grace.Stop()
		e.grace = nil
	}
	e.graceSeq++
}

func (s *Store) graceExpired(key Key, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.closed || e.graceSeq != seq || e.subscribers > 0 {
		return
	}
	e.grace = nil
	if e.fetching {
		// the landing response re-arms the timer
		return
	}
	s.evictLocked(e, "grace_expired")
}
