// Package sloghooks logs cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tagcache"
)

type Options struct {
	// Sampling for the chatty events; 0/1 = log all.
	FetchEvery   uint64
	DiscardEvery uint64
	// Keys are logged through Redact. nil logs them as-is. Keys already carry
	// only a digest of their args; Hash re-hashes that digest into a shorter
	// one that cannot be matched against Store.Keys.
	Redact func(tagcache.Key) string
}

// Hash renders a key as its resource plus a short digest.
func Hash(k tagcache.Key) string {
	sum := sha256.Sum256([]byte(k))
	return k.Resource() + ":" + hex.EncodeToString(sum[:6])
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr   atomic.Uint64
	discardCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) key(k tagcache.Key) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return string(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(k tagcache.Key, gen uint64) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("tagcache.fetch_started", "key", h.key(k), "gen", gen)
}

func (h *Hooks) FetchDiscarded(k tagcache.Key, gen uint64, reason string) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("tagcache.fetch_discarded", "key", h.key(k), "gen", gen, "reason", reason)
}

func (h *Hooks) FetchFailed(k tagcache.Key, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.fetch_failed", "key", h.key(k), "err", err)
}

func (h *Hooks) EntryEvicted(k tagcache.Key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("tagcache.entry_evicted", "key", h.key(k), "reason", reason)
}

func (h *Hooks) Invalidated(tags []tagcache.Tag, entries int) {
	if h.l == nil {
		return
	}
	h.l.Info("tagcache.invalidated", "tags", tags, "entries", entries)
}

func (h *Hooks) PatchRolledBack(id string, k tagcache.Key) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.patch_rolled_back", "mutation", id, "key", h.key(k))
}

func (h *Hooks) RollbackDeferred(id string, k tagcache.Key) {
	if h.l == nil {
		return
	}
	h.l.Info("tagcache.rollback_deferred", "mutation", id, "key", h.key(k))
}

func (h *Hooks) GenStoreError(k tagcache.Key, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.genstore_error", "key", h.key(k), "err", err)
}
