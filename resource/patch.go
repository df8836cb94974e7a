package resource

import (
	"github.com/unkn0wn-root/tagcache"
)

// Patches operate on []T list data and on single T records. Other shapes
// are skipped. Every patch returns a fresh slice; the input is never written.

// Prepend puts item at the head of every list. A list the server answered
// with null data counts as empty.
func Prepend[T Record](item T) tagcache.PatchFunc {
	return func(cur any) (any, error) {
		var list []T
		if cur != nil {
			l, ok := cur.([]T)
			if !ok {
				return nil, tagcache.ErrSkipPatch
			}
			list = l
		}
		out := make([]T, 0, len(list)+1)
		out = append(out, item)
		return append(out, list...), nil
	}
}

// RemoveByID drops record id from every list.
func RemoveByID[T Record](id int64) tagcache.PatchFunc {
	return func(cur any) (any, error) {
		list, ok := cur.([]T)
		if !ok {
			return nil, tagcache.ErrSkipPatch
		}
		out := make([]T, 0, len(list))
		for _, rec := range list {
			if rec.Identity() != id {
				out = append(out, rec)
			}
		}
		return out, nil
	}
}

// Update applies fn to record id wherever it appears.
func Update[T Record](id int64, fn func(T) T) tagcache.PatchFunc {
	return func(cur any) (any, error) {
		switch v := cur.(type) {
		case []T:
			out := make([]T, len(v))
			for i, rec := range v {
				if rec.Identity() == id {
					rec = fn(rec)
				}
				out[i] = rec
			}
			return out, nil
		case T:
			if v.Identity() != id {
				return nil, tagcache.ErrSkipPatch
			}
			return fn(v), nil
		}
		return nil, tagcache.ErrSkipPatch
	}
}

// ReplaceByID swaps record id for item.
func ReplaceByID[T Record](id int64, item T) tagcache.PatchFunc {
	return Update(id, func(T) T { return item })
}

// ReplacePlaceholder confirms a Prepend: the record with placeholderID is
// swapped for the record the server returned.
func ReplacePlaceholder[T Record](placeholderID int64) tagcache.ConfirmFunc {
	return func(cur, server any) (any, error) {
		created, ok := server.(T)
		if !ok {
			return nil, tagcache.ErrSkipPatch
		}
		return ReplaceByID(placeholderID, created)(cur)
	}
}

// Merge confirms an Update with the server's copy of the record.
func Merge[T Record]() tagcache.ConfirmFunc {
	return func(cur, server any) (any, error) {
		rec, ok := server.(T)
		if !ok {
			return nil, tagcache.ErrSkipPatch
		}
		return ReplaceByID(rec.Identity(), rec)(cur)
	}
}
