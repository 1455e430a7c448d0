package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracer(tp.Tracer("test")), rec
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracer_SpanNameAndAttributes(t *testing.T) {
	tr, rec := newRecordingTracer()
	op := Operation{Component: "auth", Name: "jwks.fetch", Target: "https://idp.example.com/jwks"}

	_, span := tr.StartSpan(context.Background(), op)
	tr.EndSpan(span, nil, "ok")

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "auth.jwks.fetch" {
		t.Errorf("span name = %q, want auth.jwks.fetch", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", s.SpanKind())
	}
	if v, _ := attr(s, "op.target"); v.AsString() != op.Target {
		t.Errorf("op.target = %q", v.AsString())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_RecordsError(t *testing.T) {
	tr, rec := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), verifyOp)
	tr.EndSpan(span, errors.New("signature invalid"), "invalid_signature")

	s := rec.Ended()[0]
	if s.SpanKind() != trace.SpanKindInternal {
		t.Errorf("span kind = %v, want internal", s.SpanKind())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
	if v, _ := attr(s, "op.error"); !v.AsBool() {
		t.Error("op.error = false, want true")
	}
	if v, _ := attr(s, "op.error_kind"); v.AsString() != "invalid_signature" {
		t.Errorf("op.error_kind = %q", v.AsString())
	}
	if len(s.Events()) == 0 {
		t.Error("expected an exception event")
	}
}

func TestNoopTracer(t *testing.T) {
	tr := NewNoopTracer()
	_, span := tr.StartSpan(context.Background(), verifyOp)
	tr.EndSpan(span, errors.New("x"), "error")

	if NewTracer(nil) == nil {
		t.Fatal("NewTracer(nil) returned nil")
	}
}
