package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records per-operation counters and latency.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation increments <prefix>.total, <prefix>.errors when err is
	// non-nil, and records <prefix>.duration_ms. kind labels the outcome.
	RecordOperation(ctx context.Context, op Operation, duration time.Duration, err error, kind string)
}

type instruments struct {
	total    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

type metricsImpl struct {
	meter metric.Meter

	mu   sync.Mutex
	byOp map[string]*instruments
}

// NewMetrics creates a Metrics backed by meter. Instruments are created on
// first use of each operation.
func NewMetrics(meter metric.Meter) Metrics {
	return &metricsImpl{
		meter: meter,
		byOp:  make(map[string]*instruments),
	}
}

func (m *metricsImpl) instrumentsFor(op Operation) (*instruments, error) {
	prefix := op.SpanName()

	m.mu.Lock()
	defer m.mu.Unlock()

	if ins, ok := m.byOp[prefix]; ok {
		return ins, nil
	}

	total, err := m.meter.Int64Counter(
		prefix+".total",
		metric.WithDescription("Total number of "+prefix+" operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := m.meter.Int64Counter(
		prefix+".errors",
		metric.WithDescription("Total number of failed "+prefix+" operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := m.meter.Float64Histogram(
		prefix+".duration_ms",
		metric.WithDescription(prefix+" duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	ins := &instruments{total: total, errors: errs, duration: duration}
	m.byOp[prefix] = ins
	return ins, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, op Operation, duration time.Duration, err error, kind string) {
	ins, ierr := m.instrumentsFor(op)
	if ierr != nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("outcome", kind)}
	if op.Target != "" {
		attrs = append(attrs, attribute.String("op.target", op.Target))
	}
	opt := metric.WithAttributes(attrs...)

	ins.total.Add(ctx, 1, opt)
	if err != nil {
		ins.errors.Add(ctx, 1, opt)
	}
	ins.duration.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that records nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordOperation(context.Context, Operation, time.Duration, error, string) {}
