package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// KeyProvider resolves the public key a token was signed with.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Key must honor cancellation of ctx.
//   - Errors: an absent kid is reported as ErrUnknownKey; key set failures
//     wrap the key set sentinels.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Fetcher retrieves the key set published at an endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (KeyMap, error)
}

// StaticKeyProvider serves a fixed KeyMap.
type StaticKeyProvider struct {
	keys KeyMap
}

// NewStaticKeyProvider creates a provider over a copy of keys.
func NewStaticKeyProvider(keys KeyMap) *StaticKeyProvider {
	cp := make(KeyMap, len(keys))
	for kid, k := range keys {
		cp[kid] = k
	}
	return &StaticKeyProvider{keys: cp}
}

// Key returns the key for kid.
func (p *StaticKeyProvider) Key(_ context.Context, kid string) (crypto.PublicKey, error) {
	return p.keys.Key(kid)
}

// DirectKeyProvider fetches the key set on every call.
type DirectKeyProvider struct {
	fetcher  Fetcher
	endpoint string
}

// NewDirectKeyProvider creates a provider that fetches endpoint per lookup.
func NewDirectKeyProvider(fetcher Fetcher, endpoint string) *DirectKeyProvider {
	return &DirectKeyProvider{fetcher: fetcher, endpoint: endpoint}
}

// Key fetches the key set and looks up kid.
func (p *DirectKeyProvider) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, errNoKid
	}
	keys, err := p.fetcher.Fetch(ctx, p.endpoint)
	if err != nil {
		return nil, err
	}
	return keys.Key(kid)
}

// CachingConfig configures a CachingKeyProvider.
type CachingConfig struct {
	// Endpoint is the JWKS URL.
	Endpoint string

	// TTL is how long a fetched key set is served before refreshing.
	// Default: 1h, clamped to 24h.
	TTL time.Duration

	// RefreshInterval is the minimum spacing of refreshes forced by an
	// unknown kid. Default: 30s.
	RefreshInterval time.Duration

	// Logger receives stale fallback and forced refresh events.
	Logger observe.Logger
}

// KeySetStatus describes the state of a CachingKeyProvider.
type KeySetStatus struct {
	Endpoint    string
	Keys        int
	LastRefresh time.Time
	LastError   error
	Stale       bool // serving a previous key set after a failed refresh
}

// CachingKeyProvider caches the key set per endpoint.
//
// Concurrent lookups read the cache; a refresh runs at most once at a time
// per endpoint and all waiting callers share its result. When a refresh
// fails, the last key set that loaded successfully keeps being served. An
// unknown kid on a fresh cache triggers one forced refresh, rate limited so
// that tokens with random kids cannot cause a fetch per request.
type CachingKeyProvider struct {
	fetcher  Fetcher
	endpoint string
	key      string
	loader   *cache.Loader[KeyMap]
	limiter  *resilience.RateLimiter
	logger   observe.Logger
	now      func() time.Time

	mu     sync.RWMutex
	status KeySetStatus
}

// NewCachingKeyProvider creates a caching provider for cfg.Endpoint.
func NewCachingKeyProvider(fetcher Fetcher, cfg CachingConfig) (*CachingKeyProvider, error) {
	if fetcher == nil {
		return nil, errors.New("auth: nil fetcher")
	}
	key, err := cache.NewEndpointKeyer("jwks").Key(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	policy := cache.DefaultPolicy()
	if cfg.TTL > 0 {
		policy.DefaultTTL = cfg.TTL
	}

	p := &CachingKeyProvider{
		fetcher:  fetcher,
		endpoint: cfg.Endpoint,
		key:      key,
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:  resilience.Every(cfg.RefreshInterval),
			Burst: 1,
		}),
		logger: cfg.Logger.With(observe.F("jwks_url", cfg.Endpoint)),
		now:    time.Now,
		status: KeySetStatus{Endpoint: cfg.Endpoint},
	}
	p.loader, err = cache.NewLoader(
		cache.NewMemoryCache[KeyMap](),
		policy,
		cache.WithStaleFallback[KeyMap](p.onStale),
		cache.WithStaleTTL[KeyMap](cfg.RefreshInterval),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Key returns the key for kid from the cached key set, refreshing it when
// expired or when kid is unknown and the forced refresh budget allows.
func (p *CachingKeyProvider) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, errNoKid
	}

	keys, err := p.loader.Get(ctx, p.key, p.load)
	if err != nil {
		return nil, p.loadError(ctx, err)
	}
	if key, err := keys.Key(kid); err == nil {
		return key, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, p.loadError(ctx, err)
	}
	if !p.limiter.Allow() {
		return keys.Key(kid)
	}

	p.logger.Info(ctx, "unknown kid, refreshing key set", observe.F("kid", kid))
	keys, err = p.loader.Refresh(ctx, p.key, p.load)
	if err != nil {
		return nil, p.loadError(ctx, err)
	}
	return keys.Key(kid)
}

// Refresh fetches the key set now, bypassing the TTL.
func (p *CachingKeyProvider) Refresh(ctx context.Context) error {
	if _, err := p.loader.Refresh(ctx, p.key, p.load); err != nil {
		return p.loadError(ctx, err)
	}
	return nil
}

// loadError reports a caller that stopped waiting on the shared load as a
// fetch failure.
func (p *CachingKeyProvider) loadError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ErrFetchFailed, ctxErr)
	}
	return err
}

// Invalidate drops the cached key set so the next lookup fetches.
func (p *CachingKeyProvider) Invalidate(ctx context.Context) error {
	return p.loader.Invalidate(ctx, p.key)
}

// Status reports the current key set state.
func (p *CachingKeyProvider) Status() KeySetStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Endpoint returns the JWKS URL this provider reads.
func (p *CachingKeyProvider) Endpoint() string {
	return p.endpoint
}

func (p *CachingKeyProvider) load(ctx context.Context) (KeyMap, error) {
	keys, err := p.fetcher.Fetch(ctx, p.endpoint)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastError = err
	if err != nil {
		return nil, err
	}
	p.status.Keys = len(keys)
	p.status.LastRefresh = p.now()
	p.status.Stale = false
	return keys, nil
}

func (p *CachingKeyProvider) onStale(ctx context.Context, _ string, err error) {
	p.mu.Lock()
	p.status.Stale = true
	p.mu.Unlock()

	p.logger.Warn(ctx, "key set refresh failed, serving previous keys",
		observe.F("error", err),
		observe.F("error_kind", ErrorKind(err)),
	)
}

var (
	_ KeyProvider = (*StaticKeyProvider)(nil)
	_ KeyProvider = (*DirectKeyProvider)(nil)
	_ KeyProvider = (*CachingKeyProvider)(nil)
	_ Fetcher     = (*JWKSFetcher)(nil)
)
