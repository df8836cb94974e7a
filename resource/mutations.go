package resource

import (
	"github.com/unkn0wn-root/tagcache"
)

// Mutation operations shared by the default routes.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpStatus  = "status"
	OpApprove = "approve"
	OpReject  = "reject"
)

// PlaceholderID marks a record created optimistically and not yet confirmed.
const PlaceholderID int64 = -1

// Create adds a record: placeholder shows at the head of every cached list
// until the server answers, then it is replaced by the created record and
// the resource's lists are refetched.
func Create[T Record](resource string, payload any, placeholder T) tagcache.MutationRequest {
	return tagcache.MutationRequest{
		Resource:    resource,
		Operation:   OpCreate,
		Payload:     payload,
		Optimistic:  Prepend(placeholder),
		Confirm:     ReplacePlaceholder[T](placeholder.Identity()),
		Invalidates: []tagcache.Tag{tagcache.ListTag(resource)},
	}
}

// Delete removes record id from every cached list right away.
func Delete[T Record](resource string, id int64) tagcache.MutationRequest {
	return tagcache.MutationRequest{
		Resource:   resource,
		Operation:  OpDelete,
		Params:     tagcache.Args{"id": id},
		Payload:    map[string]any{},
		Optimistic: RemoveByID[T](id),
		Invalidates: []tagcache.Tag{
			tagcache.ListTag(resource),
			tagcache.IDTag(resource, id),
		},
	}
}

// Edit changes record id with operation (update, status, approve, ...).
// fn previews the change locally; the server's copy wins once it answers.
func Edit[T Record](resource, operation string, id int64, payload any, fn func(T) T) tagcache.MutationRequest {
	return tagcache.MutationRequest{
		Resource:    resource,
		Operation:   operation,
		Params:      tagcache.Args{"id": id},
		Payload:     payload,
		Optimistic:  Update(id, fn),
		Confirm:     Merge[T](),
		Invalidates: []tagcache.Tag{tagcache.IDTag(resource, id)},
	}
}
