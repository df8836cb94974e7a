package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localGen struct {
	gen     uint64
	touched time.Time
}

// Local keeps generations in-process, which is all a single console session needs.
// A background loop prunes keys that have not been bumped within retention.
type Local struct {
	mu    sync.RWMutex
	gens  map[string]localGen
	clock clockwork.Clock

	ticker    clockwork.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*Local)(nil)

// NewLocal starts a Local store. cleanupInterval <= 0 or retention <= 0
// disables the background loop. A nil clock means the wall clock.
func NewLocal(clock clockwork.Clock, cleanupInterval, retention time.Duration) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Local{
		gens:  make(map[string]localGen),
		clock: clock,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = clock.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.Chan():
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[key]
	s.mu.RUnlock()
	return g.gen, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := s.clock.Now()
	s.mu.Lock()
	g := s.gens[key]
	g.gen++
	g.touched = now
	s.gens[key] = g
	s.mu.Unlock()
	return g.gen, nil
}

// Len reports how many keys currently carry a generation.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)

	s.mu.Lock()
	for k, g := range s.gens {
		if g.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh == nil {
			return
		}
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
	})
	return nil
}
