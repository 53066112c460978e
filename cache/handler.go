package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-namespace-cache/internal/cacheinfra"
	"github.com/goliatone/go-namespace-cache/pkg/clock"
)

// touch records when a tracked key was last populated, read or refreshed.
// seq breaks ties between touches that share a timestamp.
type touch struct {
	at  time.Time
	seq uint64
}

func (t touch) before(o touch) bool {
	if t.at.Equal(o.at) {
		return t.seq < o.seq
	}
	return t.at.Before(o.at)
}

// NamespaceHandler is the per-repository façade over a shared Store. It
// prefixes keys with its namespace, tracks the keys it populated, keeps the
// tracked set bounded and can refresh or invalidate the namespace as a whole.
//
// A handler is meant to be created once per repository at start-up and
// closed during teardown.
type NamespaceHandler struct {
	store   Store
	prefix  string
	cfg     HandlerConfig
	keys    KeyBuilder
	clock   clock.Clock
	logger  *zap.Logger
	metrics *Metrics

	mu        sync.Mutex
	tracked   map[string]touch
	producers map[string]Producer
	seq       uint64
	closed    bool
	sweeper   *sweeper
}

// NewNamespaceHandler binds a handler to store under prefix and arms its sweeper.
func NewNamespaceHandler(store Store, prefix string, cfg HandlerConfig) (*NamespaceHandler, error) {
	if store == nil {
		return nil, goerrors.New("namespace handler requires a store", goerrors.CategoryValidation)
	}
	if prefix == "" {
		return nil, goerrors.New("namespace handler requires a prefix", goerrors.CategoryValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys := cfg.KeyBuilder
	if keys == nil {
		keys = NewDefaultKeyBuilder()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &NamespaceHandler{
		store:   store,
		prefix:  prefix,
		cfg:     cfg,
		keys:    keys,
		clock:   clock.OrReal(cfg.Clock),
		metrics: cfg.Metrics,
		logger: logger.Named("namespace").With(
			zap.String("namespace", prefix),
			zap.Stringer("handler_id", uuid.New()),
		),
		tracked:   make(map[string]touch),
		producers: make(map[string]Producer),
	}

	h.sweeper = startSweeper(h.clock, cfg.SweepInterval, h.sweep)

	return h, nil
}

// Prefix returns the namespace prefix of every key this handler derives.
func (h *NamespaceHandler) Prefix() string {
	return h.prefix
}

// CacheKey derives the namespaced key for a repository method call.
func (h *NamespaceHandler) CacheKey(method, discriminator string, params ...any) string {
	return h.prefix + KeySeparator + h.keys.BuildKey(method, discriminator, params...)
}

// GetOrRefresh returns the cached value for key or populates it with
// producer, then tracks the key and keeps it warm with refresh-ahead.
// Producer errors are returned unchanged and leave the key untracked.
func (h *NamespaceHandler) GetOrRefresh(ctx context.Context, key string, producer Producer) (any, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	if h.isClosed() {
		return nil, ErrHandlerClosed
	}

	var populated atomic.Bool
	value, err := h.store.GetOrCreate(ctx, key, func(ctx context.Context) (any, error) {
		populated.Store(true)
		return producer(ctx)
	})
	if err != nil {
		h.metrics.Lookup(h.prefix, cacheinfra.ResultError)
		return nil, err
	}

	if populated.Load() {
		h.metrics.Lookup(h.prefix, cacheinfra.ResultMiss)
	} else {
		h.metrics.Lookup(h.prefix, cacheinfra.ResultHit)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return value, nil
	}

	h.trackLocked(key)
	h.producers[key] = producer
	h.store.RefreshAhead(key, producer, h.cfg.RefreshLead)

	return value, nil
}

// GetOrRefreshAsync runs GetOrRefresh on its own goroutine. The returned
// channel yields exactly one Result and is then closed.
func (h *NamespaceHandler) GetOrRefreshAsync(ctx context.Context, key string, producer Producer) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		value, err := h.GetOrRefresh(ctx, key, producer)
		out <- Result{Value: value, Err: err}
	}()
	return out
}

// Track marks key as touched now, evicting the least recently touched key
// when the bound is exceeded.
func (h *NamespaceHandler) Track(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trackLocked(key)
}

func (h *NamespaceHandler) trackLocked(key string) {
	h.touchLocked(key)

	if len(h.tracked) > h.cfg.MaxTrackedKeys {
		// linear scan, fine at the default bound of 50
		var (
			victim string
			oldest touch
			found  bool
		)
		for k, t := range h.tracked {
			if !found || t.before(oldest) {
				victim, oldest, found = k, t, true
			}
		}
		h.removeLocked(victim)
		h.metrics.Evict(h.prefix)
		h.logger.Debug("evicted least recently touched key", zap.String("key", victim))
	}

	h.metrics.Tracked(h.prefix, len(h.tracked))
}

func (h *NamespaceHandler) touchLocked(key string) {
	h.seq++
	h.tracked[key] = touch{at: h.clock.Now(), seq: h.seq}
}

// removeLocked drops key from the tracked set, the producers and the store
// in one step.
func (h *NamespaceHandler) removeLocked(key string) {
	delete(h.tracked, key)
	delete(h.producers, key)
	h.store.Delete(key)
}

// Invalidate deletes every tracked key from the store, cancelling their
// refresh timers, and forgets them. It is idempotent.
func (h *NamespaceHandler) Invalidate() {
	h.invalidate(cacheinfra.TriggerManual)
}

func (h *NamespaceHandler) sweep() {
	h.invalidate(cacheinfra.TriggerSweep)
}

func (h *NamespaceHandler) invalidate(trigger string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.tracked)
	for key := range h.tracked {
		h.removeLocked(key)
	}

	h.metrics.Invalidate(h.prefix, trigger)
	h.metrics.Tracked(h.prefix, 0)
	h.logger.Debug("namespace invalidated",
		zap.String("trigger", trigger),
		zap.Int("keys", n),
	)
}

// RefreshAll recomputes every tracked key that has a recorded producer.
// Keys are refreshed concurrently and independently: a failing producer is
// logged and its key keeps the previous value. RefreshAll never fails.
// Callers wanting fire-and-forget semantics run it on a goroutine.
func (h *NamespaceHandler) RefreshAll(ctx context.Context) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	jobs := make(map[string]Producer, len(h.producers))
	for key := range h.tracked {
		if producer, ok := h.producers[key]; ok {
			jobs[key] = producer
		}
	}
	h.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(h.cfg.RefreshConcurrency)
	for key, producer := range jobs {
		g.Go(func() error {
			h.refreshOne(ctx, key, producer)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *NamespaceHandler) refreshOne(ctx context.Context, key string, producer Producer) {
	value, err := cacheinfra.SafeProduce(ctx, producer)
	if err != nil {
		h.metrics.Refresh(cacheinfra.SourceBatch, cacheinfra.ResultFailure)
		h.logger.Warn("batch refresh failed, keeping previous value",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.tracked[key]; !ok {
		// invalidated or evicted while the producer ran
		h.metrics.Refresh(cacheinfra.SourceBatch, cacheinfra.ResultDiscarded)
		return
	}

	h.store.Set(key, value)
	h.touchLocked(key)
	h.metrics.Refresh(cacheinfra.SourceBatch, cacheinfra.ResultSuccess)
}

// TrackedKeys returns the tracked keys, least recently touched first.
func (h *NamespaceHandler) TrackedKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := make([]string, 0, len(h.tracked))
	for k := range h.tracked {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return h.tracked[keys[i]].before(h.tracked[keys[j]])
	})
	return keys
}

// Len returns the number of tracked keys.
func (h *NamespaceHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tracked)
}

// Close stops the sweeper and cancels the refresh timers of every tracked
// key. Cached values stay in the store. Close is idempotent.
func (h *NamespaceHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.sweeper.stop()

	for key := range h.tracked {
		h.store.CancelRefresh(key)
	}
	h.logger.Debug("namespace handler closed", zap.Int("keys", len(h.tracked)))
	return nil
}

func (h *NamespaceHandler) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
