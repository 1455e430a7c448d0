package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/tokengate/observe"
)

// DefaultAlgorithm is used when VerifierConfig.Algorithm is empty.
const DefaultAlgorithm = "RS256"

// Asymmetric signing methods a verifier can be pinned to. Symmetric and
// "none" methods are deliberately absent.
var signingMethods = map[string]jwt.SigningMethod{
	"RS256": jwt.SigningMethodRS256,
	"RS384": jwt.SigningMethodRS384,
	"RS512": jwt.SigningMethodRS512,
	"PS256": jwt.SigningMethodPS256,
	"PS384": jwt.SigningMethodPS384,
	"PS512": jwt.SigningMethodPS512,
	"ES256": jwt.SigningMethodES256,
	"ES384": jwt.SigningMethodES384,
	"ES512": jwt.SigningMethodES512,
	"EdDSA": jwt.SigningMethodEdDSA,
}

// SupportedAlgorithms returns the algorithm names NewTokenVerifier accepts.
func SupportedAlgorithms() []string {
	return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
}

// VerifierConfig configures a TokenVerifier.
type VerifierConfig struct {
	// Issuer must equal the iss claim exactly.
	Issuer string

	// Audience must be contained in the aud claim.
	Audience string

	// Algorithm is the only accepted alg. Default: RS256.
	Algorithm string

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration

	// Middleware instruments each verification. Default: no-op.
	Middleware *observe.Middleware
}

// TokenVerifier validates compact JWS bearer tokens.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: every failure wraps exactly one category sentinel from errors.go;
//     claims are only returned when every check passed.
type TokenVerifier struct {
	issuer   string
	audience string
	method   jwt.SigningMethod
	leeway   time.Duration
	keys     KeyProvider
	mw       *observe.Middleware
	now      func() time.Time
}

// NewTokenVerifier creates a verifier that resolves signing keys via keys.
func NewTokenVerifier(cfg VerifierConfig, keys KeyProvider) (*TokenVerifier, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("%w: audience is required", ErrInvalidConfig)
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: key provider is required", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("%w: negative leeway", ErrInvalidConfig)
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}

	return &TokenVerifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		method:   method,
		leeway:   cfg.Leeway,
		keys:     keys,
		mw:       cfg.Middleware,
		now:      time.Now,
	}, nil
}

// Algorithm returns the pinned algorithm.
func (v *TokenVerifier) Algorithm() string {
	return v.method.Alg()
}

// Verify checks token and returns its claims.
//
// Checks run in order: structure, algorithm, key lookup, signature, issuer,
// audience, time claims. The first failing check determines the error.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	var claims Claims
	op := observe.Operation{Component: "auth", Name: "verify", Target: v.issuer}
	err := v.mw.Run(ctx, op, func(ctx context.Context) error {
		var err error
		claims, err = v.verify(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *TokenVerifier) verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", ErrTokenMalformed)
	}

	// keyErr keeps key resolution failures out of the parser's error chain
	// so they surface with their own category.
	var keyErr error
	keyfunc := func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != v.method.Alg() {
			keyErr = fmt.Errorf("%w: alg %v is not %s", ErrInvalidSignature, t.Header["alg"], v.method.Alg())
			return nil, keyErr
		}
		kid, ok := t.Header["kid"].(string)
		if !ok && t.Header["kid"] != nil {
			keyErr = fmt.Errorf("%w: kid is not a string", ErrTokenMalformed)
			return nil, keyErr
		}
		var key crypto.PublicKey
		key, keyErr = v.keys.Key(ctx, kid)
		if keyErr != nil {
			return nil, keyErr
		}
		return key, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithJSONNumber(),
		jwt.WithoutClaimsValidation(),
	)
	mc := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, mc, keyfunc); err != nil {
		if keyErr != nil {
			return nil, keyErr
		}
		return nil, classifyParseError(err)
	}

	claims := Claims(mc)
	if iss := claims.Issuer(); iss != v.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidIssuer, iss)
	}
	if !claims.HasAudience(v.audience) {
		return nil, fmt.Errorf("%w: %q not in %v", ErrInvalidAudience, v.audience, claims.Audience())
	}

	validator := jwt.NewValidator(
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err := validator.Validate(mc); err != nil {
		return nil, classifyParseError(err)
	}
	return claims, nil
}

// classifyParseError maps golang-jwt errors onto the package sentinels.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
