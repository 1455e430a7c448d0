package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

var errExpired = errors.New("token expired")

func classifyExpired(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errExpired):
		return "token_expired"
	default:
		return "error"
	}
}

func TestMiddleware_RunSuccess(t *testing.T) {
	tr, rec := newRecordingTracer()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	var buf bytes.Buffer
	mw := NewMiddleware(tr, NewMetrics(mp.Meter("test")), NewLoggerWithWriter("debug", &buf))

	var sawSpan bool
	err := mw.Run(context.Background(), verifyOp, func(ctx context.Context) error {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil
	})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sawSpan {
		t.Error("wrapped func did not receive the span context")
	}
	if len(rec.Ended()) != 1 {
		t.Errorf("ended spans = %d, want 1", len(rec.Ended()))
	}
	if got := sumValue(t, findMetric(collect(t, reader), "auth.verify.total")); got != 1 {
		t.Errorf("auth.verify.total = %d, want 1", got)
	}
	entry := decodeLine(t, &buf)
	if entry["msg"] != "auth.verify completed" || entry["outcome"] != "ok" {
		t.Errorf("log entry = %v", entry)
	}
}

func TestMiddleware_RunErrorPropagatesUnchanged(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMiddleware(nil, nil, NewLoggerWithWriter("info", &buf), WithClassifier(classifyExpired))

	err := mw.Run(context.Background(), verifyOp, func(ctx context.Context) error {
		return errExpired
	})

	if err != errExpired {
		t.Fatalf("Run() error = %v, want %v", err, errExpired)
	}
	entry := decodeLine(t, &buf)
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["outcome"] != "token_expired" {
		t.Errorf("outcome = %v, want token_expired", entry["outcome"])
	}
	if entry["op.name"] != "verify" {
		t.Errorf("op.name = %v", entry["op.name"])
	}
}

func TestMiddleware_ClassifierCannotHideFailure(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMiddleware(nil, nil, NewLoggerWithWriter("info", &buf),
		WithClassifier(func(error) string { return "ok" }))

	_ = mw.Run(context.Background(), verifyOp, func(ctx context.Context) error {
		return errors.New("boom")
	})

	if entry := decodeLine(t, &buf); entry["outcome"] != "error" {
		t.Errorf("outcome = %v, want error", entry["outcome"])
	}
}

func TestMiddleware_InvalidOperation(t *testing.T) {
	mw := NopMiddleware()
	called := false

	err := mw.Run(context.Background(), Operation{Component: "auth"}, func(ctx context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, ErrMissingOperationName) {
		t.Errorf("Run() error = %v, want ErrMissingOperationName", err)
	}
	if called {
		t.Error("fn ran for an invalid operation")
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("MiddlewareFromObserver(nil) error = %v, want ErrNilObserver", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "tokengate-test"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	if mw.Logger() == nil {
		t.Error("Logger() = nil")
	}
}
