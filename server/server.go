package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/config"
	"github.com/jonwraymond/tokengate/health"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

type options struct {
	version    string
	logOutput  io.Writer
	httpClient *http.Client
}

// Option configures New.
type Option func(*options)

// WithVersion sets the service version reported in telemetry.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithHTTPClient fetches key sets with c.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

var newObserver = observe.NewObserver

// Server is the assembled gateway.
type Server struct {
	cfg      *config.Config
	observer observe.Observer
	logger   observe.Logger
	verifier *auth.TokenVerifier
	keys     auth.KeyProvider
	cached   *auth.CachingKeyProvider
	breaker  *resilience.CircuitBreaker
	health   *health.Aggregator
	handler  http.Handler
}

// New builds the gateway from cfg. Call Shutdown to flush telemetry.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	obsCfg := cfg.ObserverConfig(o.version)
	obsCfg.Logging.Output = o.logOutput
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obsCfg.Metrics.Registerer = registry

	obs, err := newObserver(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("server: observer: %w", err)
	}
	// Exporters are running from here on; stop them on any later failure.
	fail := func(err error) (*Server, error) {
		_ = obs.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	mw, err := observe.MiddlewareFromObserver(obs, observe.WithClassifier(auth.ErrorKind))
	if err != nil {
		return fail(fmt.Errorf("server: %w", err))
	}
	logger := obs.Logger()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.JWKS.MaxFailures,
		ResetTimeout: cfg.JWKS.ResetTimeout,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(context.Background(), "jwks circuit state changed",
				observe.F("from", from.String()), observe.F("to", to.String()))
		},
	})
	executor := resilience.NewExecutor(
		resilience.WithCircuitBreaker(breaker),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: cfg.JWKS.RetryAttempts,
			Jitter:      true,
		})),
		resilience.WithTimeout(cfg.JWKS.Timeout),
	)
	fetcher := auth.NewJWKSFetcher(auth.JWKSConfig{
		HTTPClient:    o.httpClient,
		Timeout:       cfg.JWKS.Timeout,
		MaxBodyBytes:  cfg.JWKS.MaxBodyBytes,
		Executor:      executor,
		Middleware:    mw,
		Authorization: cfg.JWKS.Authorization,
	})

	s := &Server{
		cfg:      cfg,
		observer: obs,
		logger:   logger,
		breaker:  breaker,
		health:   health.NewAggregator(),
	}

	endpoint := cfg.JWKSURL()
	if cfg.JWKS.Cache {
		cached, err := auth.NewCachingKeyProvider(fetcher, auth.CachingConfig{
			Endpoint:        endpoint,
			TTL:             cfg.JWKS.CacheTTL,
			RefreshInterval: cfg.JWKS.RefreshInterval,
			Logger:          logger,
		})
		if err != nil {
			return fail(fmt.Errorf("server: key provider: %w", err))
		}
		s.cached, s.keys = cached, cached
		s.health.Register("jwks", health.NewJWKSChecker(cached))
	} else {
		s.keys = auth.NewDirectKeyProvider(fetcher, endpoint)
	}
	s.health.Register("jwks_circuit", health.NewCircuitChecker("jwks_circuit", breaker))

	vcfg := cfg.VerifierConfig()
	vcfg.Middleware = mw
	s.verifier, err = auth.NewTokenVerifier(vcfg, s.keys)
	if err != nil {
		return fail(fmt.Errorf("server: verifier: %w", err))
	}

	var metrics http.Handler
	if obsCfg.Metrics.Exporter == "prometheus" {
		metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	s.handler = NewRouter(RouterConfig{
		Verifier:       s.verifier,
		Logger:         logger,
		Health:         s.health,
		Metrics:        metrics,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Verifier returns the token verifier.
func (s *Server) Verifier() *auth.TokenVerifier { return s.verifier }

// Logger returns the service logger.
func (s *Server) Logger() observe.Logger { return s.logger }

// Health returns the health aggregator.
func (s *Server) Health() *health.Aggregator { return s.health }

// Warm loads the key set ahead of the first request when caching is on.
// A failure is logged, not returned, so the gateway can start while the
// identity provider is unreachable.
func (s *Server) Warm(ctx context.Context) {
	if s.cached == nil {
		return
	}
	if err := s.cached.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "initial key set load failed", observe.F("error", err),
			observe.F("endpoint", s.cached.Endpoint()))
		return
	}
	st := s.cached.Status()
	s.logger.Info(ctx, "key set loaded", observe.F("endpoint", st.Endpoint), observe.F("keys", st.Keys))
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", observe.F("addr", l.Addr().String()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Shutdown flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.observer.Shutdown(ctx)
}
