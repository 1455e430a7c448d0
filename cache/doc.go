// Package cache provides TTL caching for values loaded from remote endpoints.
//
// It provides a generic Cache interface with a memory implementation, endpoint
// key derivation, TTL policies, and a Loader that collapses concurrent misses
// for the same key into a single load.
package cache
