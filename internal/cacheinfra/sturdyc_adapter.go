package cacheinfra

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
	"go.uber.org/zap"

	"github.com/goliatone/go-namespace-cache/pkg/clock"
)

// entry is what the sturdyc client stores. expiresAt is measured on the
// store clock, which is the authority for expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// schedule is the refresh-ahead state of one key. Its fields are only
// touched inside schedules.Compute for that key.
type schedule struct {
	producer  Producer
	lead      time.Duration
	expiresAt time.Time
	timer     clock.Timer
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
}

func (sc *schedule) stop() {
	if sc.timer != nil {
		sc.timer.Stop()
	}
	sc.cancel()
}

// sturdycStore keeps entries in a sturdyc client and drives refresh-ahead
// timers for the keys callers asked to keep warm.
type sturdycStore struct {
	client    *sturdyc.Client[entry]
	schedules *xsync.MapOf[string, *schedule]

	ttl             time.Duration
	minRefreshDelay time.Duration
	refreshTimeout  time.Duration

	clock   clock.Clock
	logger  *zap.Logger
	metrics *Metrics

	baseCtx    context.Context
	cancelBase context.CancelFunc
	closed     atomic.Bool
}

// NewSturdycStore creates a new sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the
// provided settings. Capacity, NumShards, TTL and EvictionPercentage are
// passed to sturdyc.New, the rest through ToSturdycOptions.
func NewSturdycStore(cfg Config) (*sturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &sturdycStore{
		client:          client,
		schedules:       xsync.NewMapOf[string, *schedule](),
		ttl:             cfg.TTL,
		minRefreshDelay: cfg.MinRefreshDelay,
		refreshTimeout:  cfg.RefreshTimeout,
		clock:           clock.OrReal(cfg.Clock),
		logger:          logger.Named("store"),
		metrics:         cfg.Metrics,
		baseCtx:         baseCtx,
		cancelBase:      cancel,
	}, nil
}

// GetOrCreate returns the live value for key, or populates it with producer.
// Producer errors are returned unchanged and nothing is stored.
func (s *sturdycStore) GetOrCreate(ctx context.Context, key string, producer Producer) (any, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	if e, ok := s.lookup(key); ok {
		return e.value, nil
	}

	e, err := s.client.GetOrFetch(ctx, key, func(ctx context.Context) (entry, error) {
		value, err := producer(ctx)
		if err != nil {
			return entry{}, err
		}
		return s.newEntry(value), nil
	})
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// GetOrCreateAsync runs GetOrCreate on its own goroutine. The returned
// channel yields exactly one Result and is then closed.
func (s *sturdycStore) GetOrCreateAsync(ctx context.Context, key string, producer Producer) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		value, err := s.GetOrCreate(ctx, key, producer)
		out <- Result{Value: value, Err: err}
	}()
	return out
}

// Get returns the live value for key without populating it.
func (s *sturdycStore) Get(key string) (any, bool) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set overwrites the entry for key and resets its expiry. A pending
// refresh-ahead schedule is re-armed against the new expiry.
func (s *sturdycStore) Set(key string, value any) {
	e := s.newEntry(value)
	s.schedules.Compute(key, func(sc *schedule, loaded bool) (*schedule, bool) {
		s.client.Set(key, e)
		if !loaded {
			return sc, true
		}
		s.arm(key, sc, e.expiresAt)
		return sc, false
	})
}

// Delete removes the entry and cancels its refresh timer. A refresh already
// running for key is discarded when it completes.
func (s *sturdycStore) Delete(key string) {
	s.schedules.Compute(key, func(sc *schedule, loaded bool) (*schedule, bool) {
		if loaded {
			sc.stop()
		}
		s.client.Delete(key)
		return sc, true
	})
}

// RefreshAhead keeps key warm by re-running producer lead before expiry.
// Calling it again for a scheduled key only swaps the producer and lead.
func (s *sturdycStore) RefreshAhead(key string, producer Producer, lead time.Duration) {
	if producer == nil || s.closed.Load() {
		return
	}

	s.schedules.Compute(key, func(sc *schedule, loaded bool) (*schedule, bool) {
		if loaded {
			sc.producer = producer
			if sc.lead != lead {
				sc.lead = lead
				s.arm(key, sc, sc.expiresAt)
			}
			return sc, false
		}

		e, ok := s.client.Get(key)
		if !ok {
			return sc, true
		}

		ctx, cancel := context.WithCancel(s.baseCtx)
		sc = &schedule{producer: producer, lead: lead, ctx: ctx, cancel: cancel}
		s.arm(key, sc, e.expiresAt)
		return sc, false
	})
}

// CancelRefresh drops the refresh schedule for key but keeps its value.
func (s *sturdycStore) CancelRefresh(key string) {
	s.schedules.Compute(key, func(sc *schedule, loaded bool) (*schedule, bool) {
		if loaded {
			sc.stop()
		}
		return sc, true
	})
}

// Len returns the number of entries held by the sturdyc client.
func (s *sturdycStore) Len() int {
	return s.client.Size()
}

// PendingRefreshes returns the number of keys with a refresh schedule.
func (s *sturdycStore) PendingRefreshes() int {
	return s.schedules.Size()
}

// Close cancels every refresh schedule. Stored values stay readable.
func (s *sturdycStore) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancelBase()

	var keys []string
	s.schedules.Range(func(key string, _ *schedule) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		s.CancelRefresh(key)
	}
}

func (s *sturdycStore) newEntry(value any) entry {
	return entry{value: value, expiresAt: s.clock.Now().Add(s.ttl)}
}

// lookup returns the entry for key when it has not expired on the store
// clock. Expired entries are dropped so the next population refetches.
func (s *sturdycStore) lookup(key string) (entry, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return entry{}, false
	}
	if s.clock.Now().Before(e.expiresAt) {
		return e, true
	}
	return s.dropExpired(key)
}

// dropExpired deletes key if it is still expired. The entry is read again
// inside the key's Compute, which serializes it with refresh writes, so a
// refresh that landed after the caller's read is returned instead of deleted.
func (s *sturdycStore) dropExpired(key string) (entry, bool) {
	var (
		live  entry
		found bool
	)
	s.schedules.Compute(key, func(sc *schedule, loaded bool) (*schedule, bool) {
		if cur, ok := s.client.Get(key); ok {
			if s.clock.Now().Before(cur.expiresAt) {
				live, found = cur, true
			} else {
				s.client.Delete(key)
			}
		}
		return sc, !loaded
	})
	return live, found
}

// arm (re)starts the refresh timer of sc for an entry expiring at
// expiresAt. Must be called inside schedules.Compute for key.
func (s *sturdycStore) arm(key string, sc *schedule, expiresAt time.Time) {
	if sc.timer != nil {
		sc.timer.Stop()
	}

	sc.gen++
	sc.expiresAt = expiresAt

	delay := expiresAt.Sub(s.clock.Now()) - s.effectiveLead(sc.lead)
	if delay < s.minRefreshDelay {
		delay = s.minRefreshDelay
	}

	gen := sc.gen
	sc.timer = s.clock.AfterFunc(delay, func() {
		s.fire(key, sc, gen)
	})
}

// effectiveLead caps lead at half the TTL. A lead reaching the TTL would
// otherwise re-arm every refresh at MinRefreshDelay and call the producer
// continuously.
func (s *sturdycStore) effectiveLead(lead time.Duration) time.Duration {
	if lead >= s.ttl {
		return s.ttl / 2
	}
	return lead
}

func (s *sturdycStore) fire(key string, sc *schedule, gen uint64) {
	var (
		producer  Producer
		ctx       context.Context
		expiresAt time.Time
		current   bool
	)

	s.schedules.Compute(key, func(cur *schedule, loaded bool) (*schedule, bool) {
		if !loaded {
			return cur, true
		}
		if cur == sc && cur.gen == gen {
			current = true
			producer = cur.producer
			ctx = cur.ctx
			expiresAt = cur.expiresAt
		}
		return cur, false
	})
	if !current {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	value, err := SafeProduce(refreshCtx, producer)
	cancel()

	s.schedules.Compute(key, func(cur *schedule, loaded bool) (*schedule, bool) {
		if !loaded {
			s.metrics.Refresh(SourceAhead, ResultDiscarded)
			return cur, true
		}
		if cur != sc || cur.gen != gen {
			s.metrics.Refresh(SourceAhead, ResultDiscarded)
			return cur, false
		}

		if err != nil {
			s.metrics.Refresh(SourceAhead, ResultFailure)
			s.logger.Warn("refresh-ahead failed, keeping stale value",
				zap.String("key", key),
				zap.Error(err),
			)
			s.arm(key, cur, expiresAt.Add(s.ttl))
			return cur, false
		}

		e := s.newEntry(value)
		s.client.Set(key, e)
		s.arm(key, cur, e.expiresAt)
		s.metrics.Refresh(SourceAhead, ResultSuccess)
		return cur, false
	})
}
