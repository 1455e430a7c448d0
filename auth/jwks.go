package auth

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

const (
	// DefaultFetchTimeout bounds a single key set request.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMaxKeySetBytes caps the key set response body.
	DefaultMaxKeySetBytes int64 = 1 << 20
)

// JWK is one entry of a JSON Web Key Set. Only the fields used for
// certificate-based verification are decoded.
type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty,omitempty"`
	Use string   `json:"use,omitempty"`
	Alg string   `json:"alg,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// JWKSDocument is the body served at a JWKS endpoint.
type JWKSDocument struct {
	Keys []JWK `json:"keys"`
}

// KeyMap maps key identifiers to public keys.
type KeyMap map[string]crypto.PublicKey

var errNoKid = fmt.Errorf("%w: token has no kid", ErrUnknownKey)

// Key returns the key for kid or ErrUnknownKey.
func (m KeyMap) Key(kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, errNoKid
	}
	key, ok := m[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return key, nil
}

// ParseJWKS decodes a key set document into a KeyMap.
//
// Every entry needs a kid and at least one x5c certificate; the public key
// is taken from the first certificate. An empty keys array yields an empty
// map.
func ParseJWKS(data []byte) (KeyMap, error) {
	var raw struct {
		Keys *[]JWK `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeySet, err)
	}
	if raw.Keys == nil {
		return nil, fmt.Errorf("%w: missing keys array", ErrMalformedKeySet)
	}

	keys := make(KeyMap, len(*raw.Keys))
	for i, jwk := range *raw.Keys {
		if jwk.Kid == "" {
			return nil, fmt.Errorf("%w: key %d has no kid", ErrMalformedKeySet, i)
		}
		pub, err := publicKeyFromX5C(jwk)
		if err != nil {
			return nil, err
		}
		keys[jwk.Kid] = pub
	}
	return keys, nil
}

func publicKeyFromX5C(jwk JWK) (crypto.PublicKey, error) {
	if len(jwk.X5c) == 0 || jwk.X5c[0] == "" {
		return nil, fmt.Errorf("%w: kid %q", ErrMissingCertificate, jwk.Kid)
	}

	// x5c uses standard base64; some providers drop the padding.
	enc := strings.TrimSpace(jwk.X5c[0])
	der, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		der, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(enc, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q: %v", ErrInvalidCertificate, jwk.Kid, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q: %v", ErrInvalidCertificate, jwk.Kid, err)
	}
	if cert.PublicKey == nil {
		return nil, fmt.Errorf("%w: kid %q: unsupported public key", ErrInvalidCertificate, jwk.Kid)
	}
	return cert.PublicKey, nil
}

// JWKSConfig configures a JWKSFetcher.
type JWKSConfig struct {
	// HTTPClient performs the request. Default: a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each attempt. Default: 10s.
	Timeout time.Duration

	// MaxBodyBytes caps the response body. Default: 1 MiB.
	MaxBodyBytes int64

	// Executor guards the request. Default: a circuit breaker that opens
	// after 5 consecutive failures for 30s, and the Timeout per attempt.
	Executor *resilience.Executor

	// Middleware instruments each fetch. Default: no-op.
	Middleware *observe.Middleware

	// Authorization, when set, is sent as the Authorization header, for
	// key sets served behind an authenticating proxy.
	Authorization string
}

// JWKSFetcher downloads and parses key sets. It holds no key state and is
// safe for concurrent use.
type JWKSFetcher struct {
	client   *http.Client
	authz    string
	maxBytes int64
	executor *resilience.Executor
	mw       *observe.Middleware
}

// NewJWKSFetcher creates a fetcher, applying defaults to zero fields.
func NewJWKSFetcher(cfg JWKSConfig) *JWKSFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxKeySetBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Executor == nil {
		cfg.Executor = resilience.NewExecutor(
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
			resilience.WithTimeout(cfg.Timeout),
		)
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}

	return &JWKSFetcher{
		client:   cfg.HTTPClient,
		authz:    cfg.Authorization,
		maxBytes: cfg.MaxBodyBytes,
		executor: cfg.Executor,
		mw:       cfg.Middleware,
	}
}

// Fetch downloads the key set at endpoint and returns its keys.
//
// Errors wrap ErrFetchFailed for transport failures, non-200 responses and
// an open circuit; ErrMalformedKeySet, ErrMissingCertificate or
// ErrInvalidCertificate for bad content.
func (f *JWKSFetcher) Fetch(ctx context.Context, endpoint string) (KeyMap, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrFetchFailed)
	}

	var keys KeyMap
	op := observe.Operation{Component: "auth", Name: "jwks.fetch", Target: endpoint}
	err := f.mw.Run(ctx, op, func(ctx context.Context) error {
		err := f.executor.Execute(ctx, func(ctx context.Context) error {
			var err error
			keys, err = f.fetchOnce(ctx, endpoint)
			return err
		})
		return fetchError(err)
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (f *JWKSFetcher) fetchOnce(ctx context.Context, endpoint string) (KeyMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("%w: create request: %v", ErrFetchFailed, err))
	}
	req.Header.Set("Accept", "application/json")
	if f.authz != "" {
		req.Header.Set("Authorization", f.authz)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, resilience.Permanent(fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedKeySet, f.maxBytes))
	}

	keys, err := ParseJWKS(body)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	return keys, nil
}

// DefaultJWKSURL returns the conventional key set location for issuer:
// <issuer>/.well-known/jwks.json.
func DefaultJWKSURL(issuer string) string {
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer + ".well-known/jwks.json"
}

// isKeySetError reports whether err came from the key set path rather than
// from the token itself.
func isKeySetError(err error) bool {
	return errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrMalformedKeySet) ||
		errors.Is(err, ErrMissingCertificate) ||
		errors.Is(err, ErrInvalidCertificate)
}
