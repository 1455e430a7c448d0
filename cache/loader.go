package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces a fresh value for a key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// StaleFunc is called when a load fails and a previously loaded value is
// served instead.
type StaleFunc func(ctx context.Context, key string, err error)

// LoaderOption configures a Loader.
type LoaderOption[V any] func(*Loader[V])

// WithStaleFallback serves the last successfully loaded value when a load
// fails. onStale may be nil; it is called once per failed shared load.
func WithStaleFallback[V any](onStale StaleFunc) LoaderOption[V] {
	return func(l *Loader[V]) {
		l.serveStale = true
		l.onStale = onStale
	}
}

// WithStaleTTL re-caches a stale value for ttl after a failed load, so the
// next load is attempted no sooner than ttl later. Only used together with
// WithStaleFallback.
func WithStaleTTL[V any](ttl time.Duration) LoaderOption[V] {
	return func(l *Loader[V]) {
		l.staleTTL = ttl
	}
}

// Loader reads through a Cache, loading values on miss.
//
// Contract:
//   - Concurrency: safe for concurrent use. Concurrent loads for the same key
//     are collapsed into one call of the LoadFunc; callers share its result.
//   - Context: the shared load runs detached from any single caller's
//     cancellation, so LoadFunc must bound its own duration. A caller whose
//     ctx is done stops waiting and gets ctx.Err(); the load continues and
//     its result is cached for later callers.
//   - Errors: load errors are never cached.
type Loader[V any] struct {
	cache  Cache[V]
	policy Policy
	group  singleflight.Group

	serveStale bool
	staleTTL   time.Duration
	onStale    StaleFunc

	mu       sync.RWMutex
	lastGood map[string]V
}

// NewLoader creates a loader over c using policy for entry TTLs.
func NewLoader[V any](c Cache[V], policy Policy, opts ...LoaderOption[V]) (*Loader[V], error) {
	if c == nil {
		return nil, ErrNilCache
	}
	l := &Loader[V]{
		cache:    c,
		policy:   policy,
		lastGood: make(map[string]V),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Get returns the cached value for key, loading it on miss or expiry.
func (l *Loader[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if l.policy.ShouldCache() {
		if v, ok := l.cache.Get(ctx, key); ok {
			return v, nil
		}
	}
	return l.load(ctx, key, load)
}

// Refresh loads a fresh value for key regardless of cache state.
func (l *Loader[V]) Refresh(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	return l.load(ctx, key, load)
}

// Invalidate drops the cached value for key. The stale fallback is kept.
func (l *Loader[V]) Invalidate(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}

// Cached reports whether a fresh value for key is cached.
func (l *Loader[V]) Cached(ctx context.Context, key string) bool {
	_, ok := l.cache.Get(ctx, key)
	return ok
}

func (l *Loader[V]) load(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return l.loadShared(detached, key, load)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (l *Loader[V]) loadShared(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	v, err := load(ctx)
	if err == nil {
		if ttl := l.policy.EffectiveTTL(0); ttl > 0 {
			_ = l.cache.Set(ctx, key, v, ttl)
		}
		l.mu.Lock()
		l.lastGood[key] = v
		l.mu.Unlock()
		return v, nil
	}

	if !l.serveStale {
		return v, err
	}
	l.mu.RLock()
	stale, ok := l.lastGood[key]
	l.mu.RUnlock()
	if !ok {
		return v, err
	}

	if l.staleTTL > 0 {
		_ = l.cache.Set(ctx, key, stale, l.policy.EffectiveTTL(l.staleTTL))
	}
	if l.onStale != nil {
		l.onStale(ctx, key, err)
	}
	return stale, nil
}
