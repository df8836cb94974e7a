// Package promhooks exports cache events as Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tagcache"
)

// Hooks counts events per resource. Counters are cheap enough to run under
// the store lock directly.
type Hooks struct {
	fetches     *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	invalidated *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
	genErrors   prometheus.Counter
}

var _ tagcache.Hooks = (*Hooks)(nil)

// New registers the counters on reg under namespace.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		fetches:     counter("fetches_total", "Requests started per resource.", "resource"),
		discarded:   counter("fetches_discarded_total", "Responses dropped before reaching the cache.", "resource", "reason"),
		failures:    counter("fetch_failures_total", "Requests that ended in an error.", "resource"),
		evictions:   counter("evictions_total", "Entries removed from the cache.", "resource", "reason"),
		invalidated: counter("invalidated_entries_total", "Entries hit by tag invalidation, per tag.", "tag"),
		rollbacks:   counter("rollbacks_total", "Optimistic patches reverted, immediately or deferred.", "resource", "mode"),
		genErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "genstore_errors_total",
			Help:      "Generation store failures.",
		}),
	}
	for _, c := range []prometheus.Collector{h.fetches, h.discarded, h.failures, h.evictions, h.invalidated, h.rollbacks, h.genErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) FetchStarted(k tagcache.Key, _ uint64) {
	h.fetches.WithLabelValues(k.Resource()).Inc()
}

func (h *Hooks) FetchDiscarded(k tagcache.Key, _ uint64, reason string) {
	h.discarded.WithLabelValues(k.Resource(), reason).Inc()
}

func (h *Hooks) FetchFailed(k tagcache.Key, _ error) {
	h.failures.WithLabelValues(k.Resource()).Inc()
}

func (h *Hooks) EntryEvicted(k tagcache.Key, reason string) {
	h.evictions.WithLabelValues(k.Resource(), reason).Inc()
}

// Invalidated adds the number of entries hit to each tag. Id tags are folded
// into "<resource>:ID" to keep label cardinality bounded.
func (h *Hooks) Invalidated(tags []tagcache.Tag, entries int) {
	for _, t := range tags {
		h.invalidated.WithLabelValues(tagLabel(t)).Add(float64(entries))
	}
}

func (h *Hooks) PatchRolledBack(_ string, k tagcache.Key) {
	h.rollbacks.WithLabelValues(k.Resource(), "immediate").Inc()
}

func (h *Hooks) RollbackDeferred(_ string, k tagcache.Key) {
	h.rollbacks.WithLabelValues(k.Resource(), "deferred").Inc()
}

func (h *Hooks) GenStoreError(tagcache.Key, error) { h.genErrors.Inc() }

func tagLabel(t tagcache.Tag) string {
	s := string(t)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			if s[i+1:] == "LIST" {
				return s
			}
			return s[:i] + ":ID"
		}
	}
	return s
}
