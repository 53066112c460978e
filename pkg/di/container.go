package di

import (
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-namespace-cache/cache"
	"github.com/goliatone/go-namespace-cache/repositorycache"
)

// ErrContainerClosed is returned when a closed container is asked for a handler.
var ErrContainerClosed = goerrors.New("cache container is closed", goerrors.CategoryInternal)

// Container provides dependency injection for cache related components.
// It owns the process wide store and one namespace handler per repository,
// and provides factory methods for creating cached repositories.
type Container struct {
	store         cache.Store
	keyBuilder    cache.KeyBuilder
	config        cache.Config
	handlerConfig cache.HandlerConfig

	mu       sync.Mutex
	handlers map[string]*cache.NamespaceHandler
	closed   bool
}

// NewContainer creates a new DI container with the provided store and handler
// configuration. Handlers inherit the store's clock, logger and metrics
// unless the handler configuration sets its own.
func NewContainer(config cache.Config, handlerConfig cache.HandlerConfig) (*Container, error) {
	if err := handlerConfig.Validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handlerConfig.RefreshLead >= config.TTL {
		return nil, goerrors.New(
			fmt.Sprintf("refresh lead %s must be shorter than the store TTL %s", handlerConfig.RefreshLead, config.TTL),
			goerrors.CategoryValidation,
		)
	}

	store, err := cache.NewStore(config)
	if err != nil {
		return nil, err
	}

	if handlerConfig.KeyBuilder == nil {
		handlerConfig.KeyBuilder = cache.NewDefaultKeyBuilder()
	}
	if handlerConfig.Clock == nil {
		handlerConfig.Clock = config.Clock
	}
	if handlerConfig.Logger == nil {
		handlerConfig.Logger = config.Logger
	}
	if handlerConfig.Metrics == nil {
		handlerConfig.Metrics = config.Metrics
	}

	return &Container{
		store:         store,
		keyBuilder:    handlerConfig.KeyBuilder,
		config:        config,
		handlerConfig: handlerConfig,
		handlers:      make(map[string]*cache.NamespaceHandler),
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
// This is a convenience constructor for typical use cases where custom configuration
// is not required.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig(), cache.DefaultHandlerConfig())
}

// Store returns the singleton store shared by every namespace.
func (c *Container) Store() cache.Store {
	return c.store
}

// KeyBuilder returns the key builder shared by every namespace.
func (c *Container) KeyBuilder() cache.KeyBuilder {
	return c.keyBuilder
}

// Config returns a copy of the store configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// HandlerConfig returns a copy of the configuration new handlers are created with.
func (c *Container) HandlerConfig() cache.HandlerConfig {
	return c.handlerConfig
}

// Handler returns the namespace handler for namespace, creating it on first use.
func (c *Container) Handler(namespace string) (*cache.NamespaceHandler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContainerClosed
	}
	if h, ok := c.handlers[namespace]; ok {
		return h, nil
	}

	h, err := cache.NewNamespaceHandler(c.store, namespace, c.handlerConfig)
	if err != nil {
		return nil, err
	}
	c.handlers[namespace] = h
	return h, nil
}

// Namespaces returns the number of handlers created so far.
func (c *Container) Namespaces() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Close closes every handler and then the store. It is safe to call more than once.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for namespace, h := range c.handlers {
		if err := h.Close(); err != nil && c.handlerConfig.Logger != nil {
			c.handlerConfig.Logger.Warn("closing namespace handler",
				zap.String("namespace", namespace),
				zap.Error(err),
			)
		}
	}
	c.store.Close()
	return nil
}

// NewCachedRepository creates a new cached repository that wraps the provided base repository.
// The repository gets its own namespace, named after T (see repositorycache.NamespaceFor).
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[Tool](container, baseToolRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T]) (*repositorycache.CachedRepository[T], error) {
	return NewCachedRepositoryIn(container, repositorycache.NamespaceFor[T](), base)
}

// NewCachedRepositoryIn is NewCachedRepository with an explicit namespace.
func NewCachedRepositoryIn[T any](container *Container, namespace string, base repository.Repository[T]) (*repositorycache.CachedRepository[T], error) {
	handler, err := container.Handler(namespace)
	if err != nil {
		return nil, err
	}
	return repositorycache.New(base, handler), nil
}
