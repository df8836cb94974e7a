package tagcache

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/tagcache/transport"
)

// PatchFunc speculatively edits one entry's data. It must return a new value
// and leave current untouched: the old value is kept as the rollback snapshot.
// Return ErrSkipPatch for data shapes the patch does not handle.
type PatchFunc func(current any) (any, error)

// ConfirmFunc folds the server's response into an entry after a successful
// write, e.g. swapping an optimistic placeholder for the created record.
// The same immutability rule as PatchFunc applies.
type ConfirmFunc func(current, server any) (any, error)

// MutationRequest declares a write, its optimistic patch and the tags its
// success invalidates, all before the request is sent.
type MutationRequest struct {
	Resource    string
	Operation   string
	Params      Args
	Payload     any
	Optimistic  PatchFunc
	Confirm     ConfirmFunc
	Invalidates []Tag
}

// patchRecord lists the entries one mutation patched. It lives in
// Store.pending until the mutation resolves and is removed exactly once.
type patchRecord struct {
	id   string
	keys []Key
}

// Mutation is the handle of an executing write.
type Mutation struct {
	id   string
	req  MutationRequest
	done chan struct{}
	res  transport.Result
	err  error
}

func (m *Mutation) ID() string { return m.id }

// Done is closed once the mutation resolved and the cache reflects it.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation resolves. A failed mutation returns a
// *MutationError; its patch has already been rolled back.
func (m *Mutation) Wait(ctx context.Context) (transport.Result, error) {
	select {
	case <-m.done:
		return m.res, m.err
	case <-ctx.Done():
		return transport.Result{}, ctx.Err()
	}
}

// Result returns the outcome without blocking; done is false while in flight.
func (m *Mutation) Result() (res transport.Result, done bool, err error) {
	select {
	case <-m.done:
		return m.res, true, m.err
	default:
		return transport.Result{}, false, nil
	}
}

func (m *Mutation) resolve(res transport.Result, err error) {
	m.res, m.err = res, err
	close(m.done)
}

func (m *Mutation) fail(err error, rollback []error) {
	m.resolve(transport.Result{}, &MutationError{
		MutationID: m.id,
		Resource:   m.req.Resource,
		Operation:  m.req.Operation,
		Err:        err,
		Rollback:   rollback,
	})
}

// Mutate runs Execute and waits for it.
func (s *Store) Mutate(ctx context.Context, req MutationRequest) (transport.Result, error) {
	return s.Execute(ctx, req).Wait(ctx)
}

// Execute applies req's optimistic patch to every cached entry under
// req.Invalidates, then sends the write in the background. On success the
// server's response is folded in via Confirm and the tags are invalidated;
// on failure every patched entry is restored to its snapshot and nothing is
// invalidated. Failed writes are never retried.
func (s *Store) Execute(ctx context.Context, req MutationRequest) *Mutation {
	m := &Mutation{id: uuid.NewString(), req: req, done: make(chan struct{})}
	if req.Resource == "" || req.Operation == "" {
		m.fail(&ValidationError{Resource: req.Resource, Operation: req.Operation, Reason: "resource and operation are required"}, nil)
		return m
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		m.fail(ErrClosed, nil)
		return m
	}
	if req.Optimistic != nil {
		if err := s.applyOptimisticLocked(m.id, req); err != nil {
			s.mu.Unlock()
			m.fail(err, nil)
			return m
		}
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runMutation(ctx, m)
	return m
}

func (s *Store) runMutation(ctx context.Context, m *Mutation) {
	defer s.wg.Done()

	mctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	defer cancel()

	res, err := s.exec.Do(mctx, transport.Request{
		Resource:  m.req.Resource,
		Operation: m.req.Operation,
		Params:    m.req.Params,
		Body:      m.req.Payload,
		Fresh:     true,
	})

	s.mu.Lock()
	if err != nil {
		rollback := s.rollbackLocked(m.id)
		s.mu.Unlock()
		s.log.Warn("mutation failed", Fields{"id": m.id, "resource": m.req.Resource, "op": m.req.Operation, "err": err})
		m.fail(err, rollback)
		return
	}
	s.commitLocked(m.id, m.req, res.Data)
	if !s.closed {
		s.invalidateLocked(m.req.Invalidates)
	}
	s.mu.Unlock()
	m.resolve(res, nil)
}

// applyOptimisticLocked patches every data-bearing entry under req's tags.
// If the patch fails on any entry, the entries already patched are restored
// and nothing is recorded.
func (s *Store) applyOptimisticLocked(id string, req MutationRequest) error {
	var touched []*entry
	for _, k := range s.graph.keys(req.Invalidates) {
		e, ok := s.entries[k]
		if !ok || !e.hasData {
			continue
		}
		next, err := req.Optimistic(e.data)
		if errors.Is(err, ErrSkipPatch) {
			continue
		}
		if err != nil {
			for i := len(touched) - 1; i >= 0; i-- {
				t := touched[i]
				top := t.layers[len(t.layers)-1]
				t.data = top.prev
				t.layers = t.layers[:len(t.layers)-1]
			}
			return &OptimisticRollbackError{MutationID: id, Key: k, Reason: "patch rejected current data", Err: err}
		}
		e.layers = append(e.layers, &layer{mutationID: id, prev: e.data, patch: req.Optimistic})
		e.data = next
		touched = append(touched, e)
	}
	if len(touched) == 0 {
		return nil
	}

	rec := &patchRecord{id: id, keys: make([]Key, 0, len(touched))}
	for _, e := range touched {
		rec.keys = append(rec.keys, e.key)
		e.notify()
	}
	s.pending[id] = rec
	return nil
}

// commitLocked discards the mutation's patch record and folds the server
// response into the touched entries.
func (s *Store) commitLocked(id string, req MutationRequest, server any) {
	rec, ok := s.pending[id]
	delete(s.pending, id)

	var targets []*entry
	if ok {
		for _, k := range rec.keys {
			e, live := s.entries[k]
			if !live {
				continue
			}
			if i := e.layerIndex(id); i >= 0 {
				e.layers[i].state = layerCommitted
				if req.Confirm != nil {
					s.confirmLayersLocked(e, i, req.Confirm, server)
				}
			}
			targets = append(targets, e)
		}
	} else if req.Confirm != nil {
		for _, k := range s.graph.keys(req.Invalidates) {
			if e, live := s.entries[k]; live && e.hasData {
				targets = append(targets, e)
			}
		}
	}

	for _, e := range targets {
		if req.Confirm != nil {
			next, err := req.Confirm(e.data, server)
			switch {
			case errors.Is(err, ErrSkipPatch):
			case err != nil:
				s.log.Warn("confirm failed; keeping optimistic data", Fields{"id": id, "key": e.key, "err": err})
			default:
				e.data = next
			}
		}
		s.settleLocked(e)
		e.notify()
	}
}

// confirmLayersLocked makes the committed layer at i replay as patch+confirm,
// and folds the confirmation into the snapshots of the layers above it so a
// later rollback of those keeps the server's values.
func (s *Store) confirmLayersLocked(e *entry, i int, confirm ConfirmFunc, server any) {
	l := e.layers[i]
	patch := l.patch
	l.patch = func(cur any) (any, error) {
		next, err := patch(cur)
		if err != nil {
			return nil, err
		}
		if c, err := confirm(next, server); err == nil {
			return c, nil
		}
		return next, nil
	}
	for _, above := range e.layers[i+1:] {
		if c, err := confirm(above.prev, server); err == nil {
			above.prev = c
		}
	}
}

// rollbackLocked marks the mutation's layers failed and reverts them where
// possible. Entries that vanished meanwhile are reported.
func (s *Store) rollbackLocked(id string) []error {
	rec, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)

	var errs []error
	for _, k := range rec.keys {
		e, live := s.entries[k]
		if !live {
			errs = append(errs, &OptimisticRollbackError{MutationID: id, Key: k, Reason: "entry no longer cached"})
			continue
		}
		i := e.layerIndex(id)
		if i < 0 {
			errs = append(errs, &OptimisticRollbackError{MutationID: id, Key: k, Reason: "patch no longer tracked"})
			continue
		}
		e.layers[i].state = layerFailed
		if i == len(e.layers)-1 {
			s.hooks.PatchRolledBack(id, k)
		} else {
			s.hooks.RollbackDeferred(id, k)
		}
		s.settleLocked(e)
		e.notify()
	}
	return errs
}

// settleLocked resolves what can be resolved on e's patch stack:
//   - failed layers on top are reverted to their snapshot right away;
//   - once no layer is pending, queued rollbacks are applied by restoring the
//     bottom snapshot and replaying the committed layers over it.
func (s *Store) settleLocked(e *entry) {
	for n := len(e.layers); n > 0 && e.layers[n-1].state == layerFailed; n = len(e.layers) {
		e.data = e.layers[n-1].prev
		e.layers = e.layers[:n-1]
	}
	if len(e.layers) == 0 {
		e.layers = nil
		return
	}

	failed := false
	for _, l := range e.layers {
		switch l.state {
		case layerPending:
			return
		case layerFailed:
			failed = true
		}
	}

	if failed {
		data := e.layers[0].prev
		for _, l := range e.layers {
			if l.state != layerCommitted {
				continue
			}
			next, err := l.patch(data)
			if err != nil {
				continue
			}
			data = next
		}
		e.data = data
	}
	e.layers = nil
}
