// Package cache provides a namespaced, in-process cache for repository reads.
//
// # Overview
//
// The package is built from three pieces:
//
//   - Store: a key/value store with expiry and refresh-ahead, shared by the
//     whole application and backed by sturdyc
//   - KeyBuilder: derives stable keys from a method name, a discriminator and
//     arbitrary parameters
//   - NamespaceHandler: a per-repository façade that prefixes keys, tracks the
//     keys it populated and can invalidate or refresh them together
//
// # Basic Usage
//
// Create one Store per process and one handler per repository:
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	tools, err := cache.NewNamespaceHandler(store, "ToolRepository", cache.DefaultHandlerConfig())
//	if err != nil {
//		return err
//	}
//	defer tools.Close()
//
// Reads go through GetOrRefresh with a key derived by the handler:
//
//	key := tools.CacheKey("GetPage", "", page, size)
//	result, err := cache.GetOrRefresh(ctx, tools, key, func(ctx context.Context) ([]Tool, error) {
//		return repo.GetPage(ctx, page, size)
//	})
//
// Writes invalidate the namespace:
//
//	if err := repo.CheckIn(ctx, toolID); err == nil {
//		tools.Invalidate()
//	}
//
// # Keys
//
// Keys have the form prefix:method:discriminator:params, where params is a
// JSON array of the call parameters. Maps and structs are emitted with their
// keys sorted, so {"b":1,"a":2} and {"a":2,"b":1} share a key. Values that
// implement encoding.TextMarshaler (time.Time, uuid.UUID) use their text
// form. NewHashingKeyBuilder replaces long parameter segments with their
// xxhash digest.
//
// Function and channel parameters are keyed by pointer, which is only stable
// within one process. For functions this is the code pointer: closures made at
// the same call site share it whatever they capture, so pass the captured
// values as params or in the discriminator. A pointer, slice or map that
// refers back to a value being encoded is written as "cycle:<type>".
//
// # Tracking and Eviction
//
// A handler tracks at most HandlerConfig.MaxTrackedKeys keys. Populating a
// new key past the bound evicts the least recently touched one from the
// store. Every successful GetOrRefresh touches its key and keeps it warm with
// refresh-ahead, RefreshLead before expiry.
//
// A sweeper invalidates the whole namespace every SweepInterval, independent
// of per-key expiry, to bound staleness from writes the application never
// reported.
//
// # Errors
//
// Producer errors are returned unchanged and the key is left unpopulated and
// untracked. Failures during refresh-ahead or RefreshAll keep the previous
// value and are logged. Configuration errors are go-errors values in the
// validation category.
package cache
