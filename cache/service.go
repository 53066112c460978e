package cache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-namespace-cache/internal/cacheinfra"
)

// KeyBuilder builds a cache key from a method name, a discriminator and
// arbitrary params. It is responsible for producing stable keys across calls.
type KeyBuilder interface {
	BuildKey(method, discriminator string, params ...any) string
}

// Producer computes the value to cache. It is supplied by the repository and
// is opaque to the cache; it may perform I/O and should honour ctx.
type Producer = cacheinfra.Producer

// Result is the outcome of an asynchronous population.
type Result = cacheinfra.Result

// FetchFn is the typed producer accepted by GetOrRefresh.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store holds entries with expiry and refreshes them ahead of expiry.
// It knows nothing about namespaces.
type Store interface {
	GetOrCreate(ctx context.Context, key string, producer Producer) (any, error)
	GetOrCreateAsync(ctx context.Context, key string, producer Producer) <-chan Result
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	RefreshAhead(key string, producer Producer, lead time.Duration)
	CancelRefresh(key string)
	Len() int
	Close()
}

var (
	// ErrInvalidResultType is returned by GetOrRefresh when the cached value
	// does not have the requested type.
	ErrInvalidResultType = goerrors.New("cached value has unexpected type", goerrors.CategoryInternal)

	// ErrHandlerClosed is returned when a closed NamespaceHandler is asked to populate.
	ErrHandlerClosed = goerrors.New("namespace handler is closed", goerrors.CategoryInternal)

	// ErrNilProducer is returned when a population is requested without a producer.
	ErrNilProducer = cacheinfra.ErrNilProducer
)

// GetOrRefresh is a type-safe wrapper around NamespaceHandler.GetOrRefresh.
func GetOrRefresh[T any](ctx context.Context, h *NamespaceHandler, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	if fetchFn == nil {
		return zero, ErrNilProducer
	}

	result, err := h.GetOrRefresh(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return castResult[T](result)
}

func castResult[T any](result any) (T, error) {
	var zero T
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
