package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://tenant.example.com/"
	testAudience = "https://api.example.com"
)

// testKey is a signing key with a self-signed certificate for its public half.
type testKey struct {
	kid  string
	alg  string
	kty  string
	priv crypto.Signer
	der  []byte
}

var (
	rsaOnce   sync.Once
	rsaShared [2]*rsa.PrivateKey
)

// sharedRSA returns one of two pre-generated RSA keys; generating 2048-bit
// keys per test is slow.
func sharedRSA(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		for n := range rsaShared {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			rsaShared[n] = k
		}
	})
	return rsaShared[i]
}

func selfSigned(t *testing.T, priv crypto.Signer, cn string) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, priv.Public(), priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return der
}

func newRSAKey(t *testing.T, kid string) *testKey {
	return newRSAKeyN(t, kid, 0)
}

func newRSAKeyN(t *testing.T, kid string, n int) *testKey {
	t.Helper()
	priv := sharedRSA(t, n)
	return &testKey{kid: kid, alg: "RS256", kty: "RSA", priv: priv, der: selfSigned(t, priv, kid)}
}

func newECKey(t *testing.T, kid string) *testKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &testKey{kid: kid, alg: "ES256", kty: "EC", priv: priv, der: selfSigned(t, priv, kid)}
}

func newEdKey(t *testing.T, kid string) *testKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &testKey{kid: kid, alg: "EdDSA", kty: "OKP", priv: priv, der: selfSigned(t, priv, kid)}
}

func (k *testKey) jwk() JWK {
	return JWK{
		Kid: k.kid,
		Kty: k.kty,
		Use: "sig",
		Alg: k.alg,
		X5c: []string{base64.StdEncoding.EncodeToString(k.der)},
	}
}

func (k *testKey) public() crypto.PublicKey {
	return k.priv.Public()
}

func jwksJSON(t *testing.T, keys ...*testKey) []byte {
	t.Helper()
	doc := JWKSDocument{Keys: []JWK{}}
	for _, k := range keys {
		doc.Keys = append(doc.Keys, k.jwk())
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal JWKS: %v", err)
	}
	return data
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "auth0|user-123",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "read:messages",
	}
}

// sign produces a compact token signed by k with method, carrying k's kid.
func sign(t *testing.T, method jwt.SigningMethod, k *testKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = k.kid
	s, err := tok.SignedString(k.priv)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

// tamper flips one byte of the decoded signature.
func tamper(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	sig[len(sig)/2] ^= 0xff
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join(parts, ".")
}

// jwksServer serves body and counts requests.
type jwksServer struct {
	*httptest.Server
	hits   atomic.Int64
	mu     sync.Mutex
	body   []byte
	status int
}

func newJWKSServer(t *testing.T, body []byte) *jwksServer {
	t.Helper()
	s := &jwksServer{body: body, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		body, status := s.body, s.status
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) set(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

// fakeFetcher returns scripted results and counts calls.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
	gate    chan struct{}
}

type fetchResult struct {
	keys KeyMap
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) (KeyMap, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].keys, f.results[i].err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
