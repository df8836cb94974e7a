package tagcache

import "sort"

// tagGraph is the tag -> keys index plus its key -> tags inverse.
// A tag is present only while at least one cached entry carries it.
type tagGraph struct {
	byTag map[Tag]map[Key]struct{}
	byKey map[Key][]Tag
}

func newTagGraph() *tagGraph {
	return &tagGraph{
		byTag: make(map[Tag]map[Key]struct{}),
		byKey: make(map[Key][]Tag),
	}
}

// register makes tags the complete tag set of key. Registering the same set again is a no-op.
func (g *tagGraph) register(key Key, tags []Tag) {
	g.unregister(key)
	if len(tags) == 0 {
		return
	}
	uniq := make([]Tag, 0, len(tags))
	for _, t := range tags {
		keys := g.byTag[t]
		if keys == nil {
			keys = make(map[Key]struct{})
			g.byTag[t] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		uniq = append(uniq, t)
	}
	g.byKey[key] = uniq
}

func (g *tagGraph) unregister(key Key) {
	for _, t := range g.byKey[key] {
		if keys, ok := g.byTag[t]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(g.byTag, t)
			}
		}
	}
	delete(g.byKey, key)
}

// keys returns every key registered under any of tags, sorted.
func (g *tagGraph) keys(tags []Tag) []Key {
	seen := make(map[Key]struct{})
	for _, t := range tags {
		for k := range g.byTag[t] {
			seen[k] = struct{}{}
		}
	}
	out := make([]Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *tagGraph) tagCount() int { return len(g.byTag) }

// invalidateLocked marks every entry under tags stale. Observed entries are
// refetched in the background; unobserved ones are evicted.
func (s *Store) invalidateLocked(tags []Tag) int {
	keys := s.graph.keys(tags)
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok {
			continue
		}
		if e.subscribers > 0 {
			e.status = StatusStale
			s.startFetchLocked(e, true)
			continue
		}
		s.evictLocked(e, "invalidated")
	}
	s.hooks.Invalidated(tags, len(keys))
	if len(keys) > 0 {
		s.log.Debug("tags invalidated", Fields{"tags": tags, "entries": len(keys)})
	}
	return len(keys)
}

// Invalidate marks every entry under any of tags stale, refetching the
// observed ones and evicting the rest. It returns the number of entries hit.
func (s *Store) Invalidate(tags ...Tag) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.invalidateLocked(tags), nil
}
