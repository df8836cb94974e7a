package tagcache

// Hooks are callbacks for high-signal cache events.
// They run while the store lock is held: implementations MUST be cheap and
// non-blocking (wrap slow sinks with hooks/async).
type Hooks interface {
	// A request for key started; gen is its request generation.
	FetchStarted(key Key, gen uint64)

	// A response arrived but was not applied.
	// reason ∈ {"superseded", "evicted", "gen_error"}
	FetchDiscarded(key Key, gen uint64, reason string)

	// A request failed; the entry keeps its previous data.
	FetchFailed(key Key, err error)

	// An entry left the cache.
	// reason ∈ {"grace_expired", "invalidated"}
	EntryEvicted(key Key, reason string)

	// Tags were invalidated; entries is the number of keys they matched.
	Invalidated(tags []Tag, entries int)

	// A failed mutation's patch was reverted on key.
	PatchRolledBack(mutationID string, key Key)

	// A failed mutation's patch sits under a newer pending patch; its
	// rollback waits until the newer one resolves.
	RollbackDeferred(mutationID string, key Key)

	// The GenStore failed to snapshot or bump.
	GenStoreError(key Key, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) FetchStarted(Key, uint64)           {}
func (NopHooks) FetchDiscarded(Key, uint64, string) {}
func (NopHooks) FetchFailed(Key, error)             {}
func (NopHooks) EntryEvicted(Key, string)           {}
func (NopHooks) Invalidated([]Tag, int)             {}
func (NopHooks) PatchRolledBack(string, Key)        {}
func (NopHooks) RollbackDeferred(string, Key)       {}
func (NopHooks) GenStoreError(Key, error)           {}

// MultiHooks fans every event out to hs in order. nil entries are skipped.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return NopHooks{}
	case 1:
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) FetchStarted(k Key, g uint64) {
	for _, h := range m {
		h.FetchStarted(k, g)
	}
}

func (m multiHooks) FetchDiscarded(k Key, g uint64, reason string) {
	for _, h := range m {
		h.FetchDiscarded(k, g, reason)
	}
}

func (m multiHooks) FetchFailed(k Key, err error) {
	for _, h := range m {
		h.FetchFailed(k, err)
	}
}

func (m multiHooks) EntryEvicted(k Key, reason string) {
	for _, h := range m {
		h.EntryEvicted(k, reason)
	}
}

func (m multiHooks) Invalidated(tags []Tag, n int) {
	for _, h := range m {
		h.Invalidated(tags, n)
	}
}

func (m multiHooks) PatchRolledBack(id string, k Key) {
	for _, h := range m {
		h.PatchRolledBack(id, k)
	}
}

func (m multiHooks) RollbackDeferred(id string, k Key) {
	for _, h := range m {
		h.RollbackDeferred(id, k)
	}
}

func (m multiHooks) GenStoreError(k Key, err error) {
	for _, h := range m {
		h.GenStoreError(k, err)
	}
}
