// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a base repository and routes its reads through a
// cache.NamespaceHandler. Every repository gets its own namespace, so a write
// to one entity never touches the cache of another.
//
// # Basic Usage
//
//	store, _ := cache.NewStore(cache.DefaultConfig())
//	handler, _ := cache.NewNamespaceHandler(store, repositorycache.NamespaceFor[Tool](), cache.DefaultHandlerConfig())
//
//	tools := repositorycache.New(base, handler)
//
//	// Use exactly like your base repository
//	tool, err := tools.GetByID(ctx, "tool-17")
//	all, total, err := tools.List(ctx)
//
// The pkg/di container builds the store and one handler per namespace for you.
//
// # Cached vs Pass-through Operations
//
// Get, GetByID, GetByIdentifier, List and Count are served from the cache.
// List caches the records and the total together.
//
// Transactional reads (*Tx methods) and Raw queries go straight to the base
// repository so they never observe data from outside the transaction.
//
// # Invalidation
//
// Every successful write (Create, Update, Upsert, Delete, their bulk and Tx
// variants, and GetOrCreate) invalidates the whole namespace. Failed writes
// leave the cache untouched. Between writes, tracked keys are refreshed ahead
// of expiry and the namespace is swept periodically, see the cache package.
//
// # Discriminators
//
// WithDiscriminator scopes reads to a caller supplied value, for example a
// tenant or user ID:
//
//	ctx = repositorycache.WithDiscriminator(ctx, tenantID)
//	tools.List(ctx)
//
// # Error Handling
//
// Errors from the base repository are propagated unchanged and are never cached.
//
// # Criteria
//
// Select criteria are closures, so they cannot be compared directly. The
// decorator applies them to a select on T and uses the rendered SQL as part
// of the key: SelectBy("status", "=", "available") and the same helper with
// "checked_out" produce different keys. Criteria that cannot be rendered
// without a database (they set a query error or panic) are passed straight
// to the base repository and never cached.
package repositorycache
