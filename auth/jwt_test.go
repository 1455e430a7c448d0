package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/tokengate/observe"
)

func newVerifier(t *testing.T, alg string, keys KeyProvider) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(VerifierConfig{
		Issuer:    testIssuer,
		Audience:  testAudience,
		Algorithm: alg,
	}, keys)
	if err != nil {
		t.Fatalf("NewTokenVerifier() error = %v", err)
	}
	return v
}

func TestNewTokenVerifier(t *testing.T) {
	keys := NewStaticKeyProvider(nil)

	tests := []struct {
		name    string
		cfg     VerifierConfig
		keys    KeyProvider
		wantErr error
	}{
		{"defaults to RS256", VerifierConfig{Issuer: testIssuer, Audience: testAudience}, keys, nil},
		{"EdDSA", VerifierConfig{Issuer: testIssuer, Audience: testAudience, Algorithm: "EdDSA"}, keys, nil},
		{"HS256 rejected", VerifierConfig{Issuer: testIssuer, Audience: testAudience, Algorithm: "HS256"}, keys, ErrUnsupportedAlgorithm},
		{"none rejected", VerifierConfig{Issuer: testIssuer, Audience: testAudience, Algorithm: "none"}, keys, ErrUnsupportedAlgorithm},
		{"unknown alg", VerifierConfig{Issuer: testIssuer, Audience: testAudience, Algorithm: "RS1"}, keys, ErrUnsupportedAlgorithm},
		{"missing issuer", VerifierConfig{Audience: testAudience}, keys, ErrInvalidConfig},
		{"missing audience", VerifierConfig{Issuer: testIssuer}, keys, ErrInvalidConfig},
		{"missing keys", VerifierConfig{Issuer: testIssuer, Audience: testAudience}, nil, ErrInvalidConfig},
		{"negative leeway", VerifierConfig{Issuer: testIssuer, Audience: testAudience, Leeway: -time.Second}, keys, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewTokenVerifier(tt.cfg, tt.keys)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewTokenVerifier() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenVerifier() error = %v", err)
			}
			if tt.cfg.Algorithm == "" && v.Algorithm() != "RS256" {
				t.Errorf("Algorithm() = %q, want RS256", v.Algorithm())
			}
		})
	}
}

func TestTokenVerifier_ValidTokenRoundTrips(t *testing.T) {
	tests := []struct {
		alg    string
		method jwt.SigningMethod
		key    func(*testing.T, string) *testKey
	}{
		{"RS256", jwt.SigningMethodRS256, newRSAKey},
		{"RS512", jwt.SigningMethodRS512, newRSAKey},
		{"PS256", jwt.SigningMethodPS256, newRSAKey},
		{"ES256", jwt.SigningMethodES256, newECKey},
		{"EdDSA", jwt.SigningMethodEdDSA, newEdKey},
	}

	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			k := tt.key(t, "kid-"+tt.alg)
			v := newVerifier(t, tt.alg, NewStaticKeyProvider(KeyMap{k.kid: k.public()}))

			payload := validClaims()
			payload["https://example.com/roles"] = []any{"admin"}
			payload["account_id"] = int64(9007199254740993)
			claims, err := v.Verify(context.Background(), sign(t, tt.method, k, payload))
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Subject() != "auth0|user-123" {
				t.Errorf("sub = %q", claims.Subject())
			}
			if claims.Issuer() != testIssuer {
				t.Errorf("iss = %q", claims.Issuer())
			}
			roles, _ := claims["https://example.com/roles"].([]any)
			if len(roles) != 1 || roles[0] != "admin" {
				t.Errorf("custom claim = %v", claims["https://example.com/roles"])
			}
			if got := claims["account_id"]; got != json.Number("9007199254740993") {
				t.Errorf("account_id = %v (%T), want 9007199254740993", got, got)
			}
			if exp, ok := claims.ExpiresAt(); !ok || exp.Unix() != payload["exp"] {
				t.Errorf("ExpiresAt() = %v, %v", exp, ok)
			}
		})
	}
}

func TestTokenVerifier_Rejections(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	ec := newECKey(t, "ec-1")
	v := newVerifier(t, "RS256", NewStaticKeyProvider(KeyMap{k.kid: k.public(), ec.kid: ec.public()}))

	with := func(mutate func(jwt.MapClaims)) string {
		c := validClaims()
		mutate(c)
		return sign(t, jwt.SigningMethodRS256, k, c)
	}
	other := newRSAKey(t, "nobody-knows")
	// RSA signature under a kid that resolves to an EC key.
	mislabeled := &testKey{kid: ec.kid, priv: k.priv}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", ErrTokenMalformed},
		{"one segment", "abc", ErrTokenMalformed},
		{"two segments", "abc.def", ErrTokenMalformed},
		{"garbage segments", "@@@.###.$$$", ErrTokenMalformed},
		{"unknown kid", sign(t, jwt.SigningMethodRS256, other, validClaims()), ErrUnknownKey},
		{"tampered signature", tamper(t, sign(t, jwt.SigningMethodRS256, k, validClaims())), ErrInvalidSignature},
		{"wrong issuer", with(func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com/" }), ErrInvalidIssuer},
		{"issuer missing trailing slash", with(func(c jwt.MapClaims) { c["iss"] = strings.TrimSuffix(testIssuer, "/") }), ErrInvalidIssuer},
		{"missing issuer", with(func(c jwt.MapClaims) { delete(c, "iss") }), ErrInvalidIssuer},
		{"wrong audience", with(func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }), ErrInvalidAudience},
		{"audience array without match", with(func(c jwt.MapClaims) { c["aud"] = []string{"a", "b"} }), ErrInvalidAudience},
		{"missing audience", with(func(c jwt.MapClaims) { delete(c, "aud") }), ErrInvalidAudience},
		{"expired", with(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }), ErrTokenExpired},
		{"not yet valid", with(func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() }), ErrTokenExpired},
		{"issued in the future", with(func(c jwt.MapClaims) { c["iat"] = time.Now().Add(time.Hour).Unix() }), ErrTokenExpired},
		{"exp not a number", with(func(c jwt.MapClaims) { c["exp"] = "tomorrow" }), ErrTokenMalformed},
		{"algorithm mismatch", sign(t, jwt.SigningMethodRS384, k, validClaims()), ErrInvalidSignature},
		{"key type mismatch", sign(t, jwt.SigningMethodRS256, mislabeled, validClaims()), ErrInvalidSignature},
		{"missing kid", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
			s, _ := tok.SignedString(k.priv)
			return s
		}(), ErrUnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if claims != nil {
				t.Errorf("Verify() returned claims on failure: %v", claims)
			}
		})
	}
}

func TestTokenVerifier_RejectsAlgNone(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	v := newVerifier(t, "RS256", NewStaticKeyProvider(KeyMap{k.kid: k.public()}))

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
	tok.Header["kid"] = k.kid
	unsigned, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := v.Verify(context.Background(), unsigned); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(alg none) error = %v, want ErrInvalidSignature", err)
	}
}

func TestTokenVerifier_RejectsHS256KeyConfusion(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	v := newVerifier(t, "RS256", NewStaticKeyProvider(KeyMap{k.kid: k.public()}))

	// Signed with the public certificate bytes as an HMAC secret.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	tok.Header["kid"] = k.kid
	forged, err := tok.SignedString(k.der)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := v.Verify(context.Background(), forged); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(HS256) error = %v, want ErrInvalidSignature", err)
	}
}

func TestTokenVerifier_AudienceArray(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	v := newVerifier(t, "RS256", NewStaticKeyProvider(KeyMap{k.kid: k.public()}))

	c := validClaims()
	c["aud"] = []string{"https://tenant.example.com/userinfo", testAudience}

	claims, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k, c))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(claims.Audience()) != 2 {
		t.Errorf("Audience() = %v", claims.Audience())
	}
}

func TestTokenVerifier_Leeway(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	v, err := NewTokenVerifier(VerifierConfig{
		Issuer:   testIssuer,
		Audience: testAudience,
		Leeway:   time.Minute,
	}, NewStaticKeyProvider(KeyMap{k.kid: k.public()}))
	if err != nil {
		t.Fatalf("NewTokenVerifier() error = %v", err)
	}

	c := validClaims()
	c["exp"] = time.Now().Add(-10 * time.Second).Unix()

	if _, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k, c)); err != nil {
		t.Errorf("Verify() within leeway error = %v", err)
	}
}

func TestTokenVerifier_CheckOrder(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	v := newVerifier(t, "RS256", NewStaticKeyProvider(KeyMap{k.kid: k.public()}))

	expiredWrongIssuer := validClaims()
	expiredWrongIssuer["exp"] = time.Now().Add(-time.Hour).Unix()
	expiredWrongIssuer["iss"] = "https://evil.example.com/"

	expiredWrongAudience := validClaims()
	expiredWrongAudience["exp"] = time.Now().Add(-time.Hour).Unix()
	expiredWrongAudience["aud"] = "nope"

	wrongIssuerAndAudience := validClaims()
	wrongIssuerAndAudience["iss"] = "https://evil.example.com/"
	wrongIssuerAndAudience["aud"] = "nope"

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"signature before time", tamper(t, sign(t, jwt.SigningMethodRS256, k, expiredWrongIssuer)), ErrInvalidSignature},
		{"issuer before time", sign(t, jwt.SigningMethodRS256, k, expiredWrongIssuer), ErrInvalidIssuer},
		{"audience before time", sign(t, jwt.SigningMethodRS256, k, expiredWrongAudience), ErrInvalidAudience},
		{"issuer before audience", sign(t, jwt.SigningMethodRS256, k, wrongIssuerAndAudience), ErrInvalidIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// End to end against a JWKS endpoint: a token signed by the published key
// verifies; one signed by a different private key under the same kid does not.
func TestTokenVerifier_EndToEndJWKS(t *testing.T) {
	published := newRSAKeyN(t, "rsa-1", 0)
	impostor := newRSAKeyN(t, "rsa-1", 1)
	srv := newJWKSServer(t, jwksJSON(t, published))

	keys, err := NewCachingKeyProvider(NewJWKSFetcher(JWKSConfig{}), CachingConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewCachingKeyProvider() error = %v", err)
	}
	v := newVerifier(t, "RS256", keys)

	if _, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, published, validClaims())); err != nil {
		t.Errorf("Verify(published key) error = %v", err)
	}
	if _, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, impostor, validClaims())); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(impostor key) error = %v, want ErrInvalidSignature", err)
	}
}

func TestTokenVerifier_KeySetErrorsPropagate(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	srv := newJWKSServer(t, []byte(`{"keys":[{"kid":"rsa-1"}]}`))
	v := newVerifier(t, "RS256", NewDirectKeyProvider(NewJWKSFetcher(JWKSConfig{}), srv.URL))

	_, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k, validClaims()))
	if !errors.Is(err, ErrMissingCertificate) {
		t.Errorf("Verify() error = %v, want ErrMissingCertificate", err)
	}
}

func TestTokenVerifier_Instrumented(t *testing.T) {
	k := newRSAKey(t, "rsa-1")
	var logs bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("info", &logs), observe.WithClassifier(ErrorKind))
	v, err := NewTokenVerifier(VerifierConfig{
		Issuer:     testIssuer,
		Audience:   "someone-else",
		Middleware: mw,
	}, NewStaticKeyProvider(KeyMap{k.kid: k.public()}))
	if err != nil {
		t.Fatalf("NewTokenVerifier() error = %v", err)
	}

	_, _ = v.Verify(context.Background(), sign(t, jwt.SigningMethodRS256, k, validClaims()))

	if !strings.Contains(logs.String(), `"outcome":"invalid_audience"`) {
		t.Errorf("expected invalid_audience outcome in logs, got %s", logs.String())
	}
}
