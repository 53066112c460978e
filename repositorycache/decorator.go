package repositorycache

import (
	"context"

	"github.com/goliatone/go-namespace-cache/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a base repository with a cache namespace.
// Reads are served through the namespace handler, successful writes
// invalidate the whole namespace.
type CachedRepository[T any] struct {
	base    repository.Repository[T]
	handler *cache.NamespaceHandler
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], handler *cache.NamespaceHandler) *CachedRepository[T] {
	return &CachedRepository[T]{
		base:    base,
		handler: handler,
	}
}

// Namespace returns the handler owning this repository's cache keys.
func (c *CachedRepository[T]) Namespace() *cache.NamespaceHandler {
	return c.handler
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "Get", criteria)
	return readThrough(ctx, c.handler, key, ok, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "GetByID", criteria, id)
	return readThrough(ctx, c.handler, key, ok, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key, ok := c.cacheKey(ctx, "List", criteria)
	res, err := readThrough(ctx, c.handler, key, ok, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key, ok := c.cacheKey(ctx, "Count", criteria)
	return readThrough(ctx, c.handler, key, ok, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.cacheKey(ctx, "GetByIdentifier", criteria, identifier)
	return readThrough(ctx, c.handler, key, ok, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// GetOrCreate gets a record or creates it if it doesn't exist.
// It may have created a record, so it invalidates like a write.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	return result, c.invalidateOnSuccess(err)
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	return result, c.invalidateOnSuccess(err)
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateOnSuccess(err)
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return c.invalidateOnSuccess(c.base.Delete(ctx, record))
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.invalidateOnSuccess(c.base.DeleteTx(ctx, tx, record))
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.invalidateOnSuccess(c.base.DeleteMany(ctx, criteria...))
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.invalidateOnSuccess(c.base.DeleteManyTx(ctx, tx, criteria...))
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.invalidateOnSuccess(c.base.DeleteWhere(ctx, criteria...))
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.invalidateOnSuccess(c.base.DeleteWhereTx(ctx, tx, criteria...))
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return c.invalidateOnSuccess(c.base.ForceDelete(ctx, record))
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.invalidateOnSuccess(c.base.ForceDeleteTx(ctx, tx, record))
}

// GetTx retrieves a single record using the provided criteria within a transaction.
// Transactional reads bypass the cache.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results. Raw queries are
// never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// cacheKey derives the key for a read. Criteria contribute their rendered
// SQL; ok is false when they cannot be rendered.
func (c *CachedRepository[T]) cacheKey(ctx context.Context, method string, criteria []repository.SelectCriteria, params ...any) (string, bool) {
	rendered, ok := renderCriteria[T](criteria)
	if !ok {
		return "", false
	}
	if rendered != "" {
		params = append(params, rendered)
	}
	return c.handler.CacheKey(method, discriminatorFromContext(ctx), params...), true
}

// readThrough serves fetch through the namespace when the read is
// cacheable and calls it directly otherwise.
func readThrough[V any](ctx context.Context, h *cache.NamespaceHandler, key string, cacheable bool, fetch cache.FetchFn[V]) (V, error) {
	if !cacheable {
		return fetch(ctx)
	}
	return cache.GetOrRefresh(ctx, h, key, fetch)
}

// invalidateOnSuccess drops the namespace when the write succeeded and
// returns err unchanged.
func (c *CachedRepository[T]) invalidateOnSuccess(err error) error {
	if err == nil {
		c.handler.Invalidate()
	}
	return err
}
