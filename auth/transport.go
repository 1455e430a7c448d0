package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonwraymond/tokengate/observe"
)

// Verifier verifies a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingCredentials
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

// Secured is HTTP middleware that lets a request through only when it
// carries a valid bearer token. The verified claims are stored in the
// request context.
//
// Rejected requests get 401 with a WWW-Authenticate challenge and a JSON
// body naming the failure category. Error details are logged, not returned.
//
// Usage:
//
//	r.With(auth.Secured(verifier, logger)).Get("/api/private", handler)
func Secured(v Verifier, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, err := BearerToken(r)
			if err == nil {
				var claims Claims
				claims, err = v.Verify(ctx, token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
					return
				}
			}

			fields := []observe.Field{
				observe.F("error", err),
				observe.F("error_kind", ErrorKind(err)),
				observe.F("path", r.URL.Path),
			}
			if isKeySetError(err) {
				logger.Error(ctx, "token verification unavailable", fields...)
			} else {
				logger.Info(ctx, "request rejected", fields...)
			}
			WriteUnauthorized(w, err)
		})
	}
}

// WriteUnauthorized writes a 401 response for err with a Bearer challenge.
// A request without credentials gets a bare challenge; any other failure is
// reported as invalid_token.
func WriteUnauthorized(w http.ResponseWriter, err error) {
	challenge := "Bearer"
	if err != nil && !errors.Is(err, ErrMissingCredentials) {
		challenge = `Bearer error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: FailureMessage(err)})
}

// RequireScope is HTTP middleware, mounted behind Secured, that lets a
// request through only when its identity was granted scope. Otherwise it
// responds 403 with an insufficient_scope challenge.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromContext(r.Context()).HasScope(scope) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error="insufficient_scope", scope=%q`, scope))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Message: FailureMessage(ErrInsufficientScope)})
		})
	}
}
