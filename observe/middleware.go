package observe

import (
	"context"
	"time"
)

// OperationFunc is the unit of work Middleware instruments.
type OperationFunc func(ctx context.Context) error

// Classifier maps an operation error to a low-cardinality kind label.
type Classifier func(err error) string

// DefaultClassifier labels nil as "ok" and everything else as "error".
func DefaultClassifier(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Middleware wraps operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is propagated to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify Classifier
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithClassifier sets the error classifier used for the outcome label.
func WithClassifier(c Classifier) MiddlewareOption {
	return func(m *Middleware) {
		if c != nil {
			m.classify = c
		}
	}
}

// NewMiddleware creates a Middleware. Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, opts ...MiddlewareOption) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	m := &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		classify: DefaultClassifier,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NopMiddleware returns a Middleware that only runs the operation.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Run executes fn inside op's span and records its outcome. An operation
// without a component or name is rejected before fn runs.
func (m *Middleware) Run(ctx context.Context, op Operation, fn OperationFunc) error {
	if err := op.Validate(); err != nil {
		return err
	}
	ctx, span := m.tracer.StartSpan(ctx, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	kind := m.classify(err)
	if err != nil && kind == "ok" {
		kind = "error"
	}

	m.tracer.EndSpan(span, err, kind)
	m.metrics.RecordOperation(ctx, op, duration, err, kind)

	logger := m.logger.WithOperation(op)
	fields := []Field{
		F("duration_ms", float64(duration)/float64(time.Millisecond)),
		F("outcome", kind),
	}
	if err != nil {
		fields = append(fields, F("error", err))
		logger.Warn(ctx, op.SpanName()+" failed", fields...)
	} else {
		logger.Debug(ctx, op.SpanName()+" completed", fields...)
	}

	return err
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, opts ...MiddlewareOption) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMiddleware(
		NewTracer(obs.Tracer()),
		NewMetrics(obs.Meter()),
		obs.Logger(),
		opts...,
	), nil
}
