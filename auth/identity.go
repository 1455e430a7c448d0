package auth

import (
	"slices"
	"strings"
	"time"
)

// Identity is the authenticated principal derived from verified claims.
type Identity struct {
	// Subject is the sub claim.
	Subject string

	// Issuer is the iss claim.
	Issuer string

	// Audience is the aud claim.
	Audience []string

	// Scopes come from the space-separated scope claim.
	Scopes []string

	// Permissions come from the permissions claim.
	Permissions []string

	// Claims contains every verified claim.
	Claims Claims

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// IdentityFromClaims builds an Identity from verified claims.
func IdentityFromClaims(c Claims) *Identity {
	id := &Identity{
		Subject:     c.Subject(),
		Issuer:      c.Issuer(),
		Audience:    c.Audience(),
		Permissions: stringList(c["permissions"]),
		Claims:      c,
	}
	if scope := c.String("scope"); scope != "" {
		id.Scopes = strings.Fields(scope)
	}
	if exp, ok := c.ExpiresAt(); ok {
		id.ExpiresAt = exp
	}
	if iat, ok := c.IssuedAt(); ok {
		id.IssuedAt = iat
	}
	return id
}

// HasScope reports whether scope was granted.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// HasPermission reports whether perm was granted.
func (id *Identity) HasPermission(perm string) bool {
	return id != nil && slices.Contains(id.Permissions, perm)
}

// IsExpired reports whether the identity has expired at now. An identity
// without exp never expires.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return now.After(id.ExpiresAt)
}
