package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-namespace-cache/internal/cacheinfra"
	"github.com/goliatone/go-namespace-cache/pkg/clock"
)

// Config exposes store configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
	MinRefreshDelay    time.Duration
	RefreshTimeout     time.Duration

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *Metrics
}

// Metrics groups the Prometheus collectors recorded by stores and handlers.
type Metrics = cacheinfra.Metrics

// NewMetrics creates cache metrics registered with reg (nil skips registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return cacheinfra.NewMetrics("namespace_cache", reg)
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the default Store implementation using the provided configuration.
func NewStore(cfg Config) (Store, error) {
	store, err := cacheinfra.NewSturdycStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		MinRefreshDelay:    c.MinRefreshDelay,
		RefreshTimeout:     c.RefreshTimeout,
		Clock:              c.Clock,
		Logger:             c.Logger,
		Metrics:            c.Metrics,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
		MinRefreshDelay:    cfg.MinRefreshDelay,
		RefreshTimeout:     cfg.RefreshTimeout,
		Clock:              cfg.Clock,
		Logger:             cfg.Logger,
		Metrics:            cfg.Metrics,
	}
}

// HandlerConfig configures one NamespaceHandler. Every field is independently
// overridable per namespace.
type HandlerConfig struct {
	// MaxTrackedKeys bounds the keys a namespace tracks. Inserting past the
	// bound evicts the least recently touched key. Default: 50
	MaxTrackedKeys int

	// SweepInterval is how often the whole namespace is invalidated,
	// independent of per-key TTLs. Default: 1h
	SweepInterval time.Duration

	// RefreshLead is how long before expiry a tracked key is refreshed.
	// Default: 600s
	RefreshLead time.Duration

	// RefreshConcurrency limits concurrent producers during RefreshAll.
	// Default: 8
	RefreshConcurrency int

	KeyBuilder KeyBuilder
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *Metrics
}

// DefaultHandlerConfig returns the handler defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxTrackedKeys:     50,
		SweepInterval:      time.Hour,
		RefreshLead:        600 * time.Second,
		RefreshConcurrency: 8,
	}
}

// Validate checks whether the handler configuration values are valid.
func (c HandlerConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.MaxTrackedKeys, validation.Required, validation.Min(1)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.RefreshLead, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshConcurrency, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid namespace handler configuration")
	}
	return nil
}
