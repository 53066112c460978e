package cacheinfra

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Producer computes the value to cache. It is opaque to the cache layer.
type Producer = func(ctx context.Context) (any, error)

// Result carries the outcome of an asynchronous population.
type Result struct {
	Value any
	Err   error
}

// ErrNilProducer is returned when a population is requested without a producer.
var ErrNilProducer = goerrors.New("cache producer cannot be nil", goerrors.CategoryValidation)

// SafeProduce runs producer on a background path (refresh-ahead, batch
// refresh), converting a panic into an error so one broken producer cannot
// take down the timer goroutine.
func SafeProduce(ctx context.Context, producer Producer) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = goerrors.New(fmt.Sprintf("cache producer panicked: %v", r), goerrors.CategoryInternal)
		}
	}()
	return producer(ctx)
}
