// Package auth verifies bearer tokens against an identity provider's
// published JSON Web Key Set.
//
// JWKSFetcher downloads a key set and turns the first x5c certificate of
// every entry into a public key. A KeyProvider resolves a key by kid, either
// fetching on every call (DirectKeyProvider) or through a TTL cache with
// single-flight refresh (CachingKeyProvider). TokenVerifier checks the
// signature under one pinned algorithm, then time claims, issuer and
// audience. Secured gates an http.Handler on a successful verification.
//
// Every failure is one of the sentinel errors in errors.go and can be
// matched with errors.Is.
package auth
