package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
	"go.uber.org/zap"

	"github.com/goliatone/go-namespace-cache/pkg/clock"
)

// Config holds the configuration for the sturdyc backed store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold
	// across all namespaces. Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the lifetime of an entry after population or refresh.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of a shard sturdyc evicts
	// when it reaches capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration

	// MinRefreshDelay is the shortest delay a refresh-ahead timer is armed
	// with, so a lead greater than or equal to TTL cannot spin.
	MinRefreshDelay time.Duration

	// RefreshTimeout bounds each refresh-ahead producer invocation.
	RefreshTimeout time.Duration

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
		MinRefreshDelay:    time.Second,
		RefreshTimeout:     30 * time.Second,
	}
}

// ToSturdycOptions converts the Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage are passed directly to
// sturdyc.New. Early refreshes stay disabled: refresh-ahead is scheduled by
// the store itself.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.MinRefreshDelay, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.RefreshTimeout, validation.Required, validation.Min(time.Nanosecond)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cache store configuration")
	}
	return nil
}
