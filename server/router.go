package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/health"
	"github.com/jonwraymond/tokengate/observe"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Verifier checks bearer tokens on the private endpoints. Required.
	Verifier auth.Verifier

	// Logger receives access and rejection logs. Default: no-op.
	Logger observe.Logger

	// Health backs /healthz, /readyz and /health. Default: no checks.
	Health *health.Aggregator

	// Metrics is served on /metrics when set.
	Metrics http.Handler

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string

	// RequestTimeout bounds each request. Default: 30s.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler.
//
//	GET /api/public          no token needed
//	GET /api/private         valid bearer token
//	GET /api/private-scoped  valid bearer token with the read:messages scope
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Health == nil {
		cfg.Health = health.NewAggregator()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderRequestID},
			ExposedHeaders: []string{HeaderRequestID, "WWW-Authenticate"},
			MaxAge:         300,
		}))
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	health.RegisterHandlers(r, cfg.Health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/public", MessageHandler(PublicMessage))

		r.Group(func(r chi.Router) {
			r.Use(auth.Secured(cfg.Verifier, cfg.Logger))
			r.Get("/private", MessageHandler(PrivateMessage))
			r.With(auth.RequireScope("read:messages")).Get("/private-scoped", MessageHandler(PrivateScopedMessage))
		})
	})

	return r
}
