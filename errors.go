package tagcache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/tagcache/transport"
)

var (
	ErrNotFound = errors.New("tagcache: no entry for key")
	ErrClosed   = errors.New("tagcache: store closed")
	// ErrSkipPatch is returned by a PatchFunc or ConfirmFunc whose target
	// entry has a shape it does not handle; the entry is left untouched.
	ErrSkipPatch = errors.New("tagcache: patch does not apply")
)

// The executor's error taxonomy, re-exported for callers that only import tagcache.
type (
	NetworkError    = transport.NetworkError
	HTTPError       = transport.HTTPError
	ValidationError = transport.ValidationError
)

// OptimisticRollbackError reports a patch that could not be applied or
// reverted because the target entry was not in the expected state.
type OptimisticRollbackError struct {
	MutationID string
	Key        Key
	Reason     string
	Err        error
}

func (e *OptimisticRollbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optimistic patch %s on %q: %s: %v", e.MutationID, e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("optimistic patch %s on %q: %s", e.MutationID, e.Key, e.Reason)
}

func (e *OptimisticRollbackError) Unwrap() error { return e.Err }

// MutationError is what a failed Mutation resolves with. Err is the request
// failure; Rollback holds an OptimisticRollbackError for every touched entry
// that could not be restored.
type MutationError struct {
	MutationID string
	Resource   string
	Operation  string
	Err        error
	Rollback   []error
}

func (e *MutationError) Error() string {
	switch {
	case e.Err != nil && len(e.Rollback) > 0:
		return fmt.Sprintf("mutation %s.%s failed: %v; rollback incomplete: %v",
			e.Resource, e.Operation, e.Err, errors.Join(e.Rollback...))
	case e.Err != nil:
		return fmt.Sprintf("mutation %s.%s failed: %v", e.Resource, e.Operation, e.Err)
	case len(e.Rollback) > 0:
		return fmt.Sprintf("mutation %s.%s: rollback incomplete: %v", e.Resource, e.Operation, errors.Join(e.Rollback...))
	default:
		return fmt.Sprintf("mutation %s.%s: unknown error", e.Resource, e.Operation)
	}
}

func (e *MutationError) Unwrap() []error {
	errs := make([]error, 0, 1+len(e.Rollback))
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return append(errs, e.Rollback...)
}
