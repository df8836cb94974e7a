// Package tagcache is the client-side resource cache of the marketplace admin
// console. It sits between UI consumers and the remote API: identical queries
// share one entry and one in-flight request, writes apply optimistic patches
// before the server answers, and successful writes invalidate the entries
// labelled with the tags they declare.
//
// Components:
//   - Query cache: one entry per Key (resource + canonical args), stale-while-revalidate.
//   - Tag graph: tag -> keys, used to find what a write invalidates.
//   - Mutation overlay: per-entry patch stack with exact rollback on failure.
//   - Subscription manager: ref counts, grace-period eviction, refetch-on-mount.
//   - Executor: the network side, see package transport.
//
// Flow:
//
//	snap, sub, _ := store.Subscribe("ads", nil) // Loading, fetch started
//	defer sub.Unsubscribe()
//	snap, _ = sub.Wait(ctx)                    // Success, tags registered
//
//	m := store.Execute(ctx, tagcache.MutationRequest{
//	    Resource:    "ads",
//	    Operation:   "delete",
//	    Params:      tagcache.Args{"id": 7},
//	    Optimistic:  resource.RemoveByID[resource.Ad](7),
//	    Invalidates: []tagcache.Tag{tagcache.ListTag("ads")},
//	})
//	_, err := m.Wait(ctx) // on failure the list is restored exactly
//
// State transitions run under one store lock; network calls are the only
// points where other operations interleave.
package tagcache
