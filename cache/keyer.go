package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Keyer derives cache keys from endpoint URLs.
//
// Contract:
// - Determinism: URLs that address the same resource must produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key for the endpoint.
	Key(endpoint string) (string, error)
}

// EndpointKeyer generates keys of the form <prefix>:<normalized URL>.
// Scheme and host are lowercased, default ports and fragments are dropped.
// Keys that would exceed MaxKeyLength are replaced by a SHA-256 digest.
type EndpointKeyer struct {
	Prefix string
}

// NewEndpointKeyer creates a keyer with the given prefix.
func NewEndpointKeyer(prefix string) *EndpointKeyer {
	return &EndpointKeyer{Prefix: prefix}
}

// Key generates a deterministic cache key for endpoint.
func (k *EndpointKeyer) Key(endpoint string) (string, error) {
	normalized, err := normalizeEndpoint(endpoint)
	if err != nil {
		return "", fmt.Errorf("cache: failed to normalize endpoint: %w", err)
	}

	key := k.Prefix + ":" + normalized
	if len(key) > MaxKeyLength {
		hash := sha256.Sum256([]byte(normalized))
		key = k.Prefix + ":sha256:" + hex.EncodeToString(hash[:])
	}

	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func normalizeEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not an absolute URL", endpoint)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// Ensure EndpointKeyer implements Keyer
var _ Keyer = (*EndpointKeyer)(nil)
