package tagcache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/tagcache/genstore"
	"github.com/unkn0wn-root/tagcache/transport"
)

// Args are query arguments; structurally equal Args derive the same Key.
type Args = transport.Args

// OpList is the operation used by Subscribe.
const OpList = "list"

// Executor performs one network call. *transport.Client implements it.
type Executor interface {
	Do(ctx context.Context, req transport.Request) (transport.Result, error)
}

// TagFunc declares the tags of a successful query result. It runs before the
// entry reaches Success, so the tags are always known by then.
type TagFunc func(q Query, data any) []Tag

// Options tune the Store. Only Executor is required.
type Options struct {
	Executor Executor

	Logger   Logger          // nil => NopLogger
	Hooks    Hooks           // nil => NopHooks
	Clock    clockwork.Clock // nil => wall clock
	GenStore gen.GenStore    // nil => in-process store

	GracePeriod     time.Duration // unsubscribed entries live this long; 0 => 60s
	StaleTime       time.Duration // 0 => Success never goes stale by age
	GenRetention    time.Duration // default GenStore only; 0 => 1h
	CleanupInterval time.Duration // default GenStore only; 0 => 10m

	// Tags per resource. Resources without a TagFunc get ListTag(resource).
	Tags map[string]TagFunc
}

func New(opts Options) (*Store, error) {
	return newStore(opts)
}
