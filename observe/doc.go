// Package observe provides the telemetry primitives used around token
// verification and key set fetching.
//
// An Observer owns the otel tracer and meter providers and a zap-backed
// Logger. Middleware wraps a single Operation with a span, the
// <component>.<name>.{total,errors,duration_ms} instruments and a log line.
package observe
