// Package server wires the gateway HTTP surface.
//
// NewRouter mounts the public and private endpoints, the health probes and
// the metrics endpoint on a chi router. New builds every dependency from a
// config.Config: the observer, the guarded JWKS fetcher, the key provider,
// the token verifier and the health checks.
package server
