package tagcache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Status is the lifecycle state of a cache entry.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusSuccess
	StatusStale
	StatusStaleRevalidating
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusStale:
		return "stale"
	case StatusStaleRevalidating:
		return "stale_revalidating"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetching reports whether a request for the entry is in flight.
func (s Status) Fetching() bool {
	return s == StatusLoading || s == StatusStaleRevalidating
}

// Snapshot is a consumer's view of an entry at one point in time.
type Snapshot struct {
	Key            Key
	Query          Query
	Status         Status
	Data           any
	HasData        bool
	Err            error
	Tags           []Tag
	Subscribers    int
	LastFetchedAt  time.Time
	Generation     uint64
	PendingPatches int
}

// Data returns the snapshot's payload as T.
func Data[T any](s Snapshot) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}

type layerState uint8

const (
	layerPending layerState = iota
	layerCommitted
	layerFailed
)

// layer is one optimistic patch applied to an entry. prev is the exact value
// the entry held right before the patch.
type layer struct {
	mutationID string
	prev       any
	patch      PatchFunc
	state      layerState
}

type entry struct {
	key   Key
	query Query

	data    any
	hasData bool
	status  Status
	err     error
	tags    []Tag

	subscribers   int
	subs          map[*Subscription]struct{}
	lastFetchedAt time.Time
	gen           uint64
	fetching      bool

	grace    clockwork.Timer
	graceSeq uint64

	layers []*layer
}

func newEntry(key Key, q Query) *entry {
	return &entry{
		key:   key,
		query: q,
		subs:  make(map[*Subscription]struct{}),
	}
}

func (e *entry) snapshot() Snapshot {
	var tags []Tag
	if len(e.tags) > 0 {
		tags = append(tags, e.tags...)
	}
	return Snapshot{
		Key:            e.key,
		Query:          e.query,
		Status:         e.status,
		Data:           e.data,
		HasData:        e.hasData,
		Err:            e.err,
		Tags:           tags,
		Subscribers:    e.subscribers,
		LastFetchedAt:  e.lastFetchedAt,
		Generation:     e.gen,
		PendingPatches: len(e.layers),
	}
}

func (e *entry) layerIndex(mutationID string) int {
	for i, l := range e.layers {
		if l.mutationID == mutationID {
			return i
		}
	}
	return -1
}

// notify wakes every subscriber without blocking; a pending wake-up is enough.
func (e *entry) notify() {
	for sub := range e.subs {
		sub.wake()
	}
}
