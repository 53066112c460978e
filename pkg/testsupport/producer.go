package testsupport

import (
	"context"
	"sync"
)

// CountingProducer is a producer stub that records how many times it ran.
// Each call returns the next element of Values (the last one repeats) or
// Err when set.
type CountingProducer struct {
	mu     sync.Mutex
	calls  int
	Values []any
	Err    error
	// OnCall runs inside Produce before the result is returned.
	OnCall func(call int)
}

// NewCountingProducer creates a producer returning values in order.
func NewCountingProducer(values ...any) *CountingProducer {
	return &CountingProducer{Values: values}
}

// Produce matches the cache producer signature.
func (p *CountingProducer) Produce(ctx context.Context) (any, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	err := p.Err
	var value any
	if len(p.Values) > 0 {
		idx := call - 1
		if idx >= len(p.Values) {
			idx = len(p.Values) - 1
		}
		value = p.Values[idx]
	}
	onCall := p.OnCall
	p.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// SetErr changes the error returned by subsequent calls.
func (p *CountingProducer) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// Calls returns the number of invocations so far.
func (p *CountingProducer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
