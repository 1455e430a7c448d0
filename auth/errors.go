package auth

import (
	"errors"

	"github.com/jonwraymond/tokengate/resilience"
)

// Key set errors.
var (
	ErrFetchFailed        = errors.New("auth: key set fetch failed")
	ErrMalformedKeySet    = errors.New("auth: malformed key set")
	ErrMissingCertificate = errors.New("auth: key has no x5c certificate")
	ErrInvalidCertificate = errors.New("auth: invalid x5c certificate")
	ErrUnknownKey         = errors.New("auth: unknown signing key")
)

// Token errors.
var (
	ErrMissingCredentials   = errors.New("auth: missing bearer token")
	ErrTokenMalformed       = errors.New("auth: token malformed")
	ErrInvalidSignature     = errors.New("auth: invalid token signature")
	ErrTokenExpired         = errors.New("auth: token expired or not yet valid")
	ErrInvalidIssuer        = errors.New("auth: invalid token issuer")
	ErrInvalidAudience      = errors.New("auth: invalid token audience")
	ErrUnsupportedAlgorithm = errors.New("auth: unsupported signing algorithm")
	ErrInsufficientScope    = errors.New("auth: insufficient scope")
)

// failure pairs a sentinel with its metric label and public message.
type failure struct {
	err     error
	kind    string
	message string
}

// Ordered so that the most specific category wins when an error wraps
// several sentinels.
var failures = []failure{
	{ErrMissingCredentials, "missing_credentials", "Missing bearer token"},
	{ErrTokenMalformed, "malformed", "Malformed token"},
	{ErrUnsupportedAlgorithm, "unsupported_algorithm", "Unsupported token algorithm"},
	{ErrInvalidSignature, "invalid_signature", "Invalid token signature"},
	{ErrTokenExpired, "expired", "Token expired or not yet valid"},
	{ErrInvalidIssuer, "invalid_issuer", "Invalid token issuer"},
	{ErrInvalidAudience, "invalid_audience", "Invalid token audience"},
	{ErrUnknownKey, "unknown_key", "Unknown signing key"},
	{ErrInsufficientScope, "insufficient_scope", "Insufficient scope"},
	{ErrMissingCertificate, "missing_certificate", "Signing keys unavailable"},
	{ErrInvalidCertificate, "invalid_certificate", "Signing keys unavailable"},
	{ErrMalformedKeySet, "malformed_key_set", "Signing keys unavailable"},
	{ErrFetchFailed, "fetch_failed", "Signing keys unavailable"},
}

// ErrorKind returns a low-cardinality label for err: "ok" for nil, the
// category of the sentinel it wraps, or "error".
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.kind
		}
	}
	return "error"
}

// FailureMessage returns the message safe to show a client for err. It
// names the failure category and never includes wrapped details.
func FailureMessage(err error) string {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.message
		}
	}
	return "Unauthorized"
}

// fetchError normalizes an error from the fetch path so that it always
// wraps one of the key set sentinels.
func fetchError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrMalformedKeySet, ErrMissingCertificate, ErrInvalidCertificate, ErrFetchFailed} {
		if errors.Is(err, sentinel) {
			return unwrapPermanent(err)
		}
	}
	return errors.Join(ErrFetchFailed, err)
}

// unwrapPermanent strips the retry marker added on the fetch path.
func unwrapPermanent(err error) error {
	if resilience.IsPermanent(err) {
		if u := errors.Unwrap(err); u != nil && !resilience.IsPermanent(u) {
			return u
		}
	}
	return err
}

// ErrInvalidConfig is returned by constructors given an unusable configuration.
var ErrInvalidConfig = errors.New("auth: invalid configuration")
