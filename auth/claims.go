package auth

import (
	"encoding/json"
	"time"
)

// Claims is the decoded payload of a verified token.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.String("sub") }

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return c.String("iss") }

// Audience returns the aud claim, which may be a string or an array.
func (c Claims) Audience() []string {
	return stringList(c["aud"])
}

// ExpiresAt returns the exp claim.
func (c Claims) ExpiresAt() (time.Time, bool) { return c.time("exp") }

// IssuedAt returns the iat claim.
func (c Claims) IssuedAt() (time.Time, bool) { return c.time("iat") }

func (c Claims) time(name string) (time.Time, bool) {
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0), true
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(int64(f), 0), true
	default:
		return time.Time{}, false
	}
}

// HasAudience reports whether aud contains audience.
func (c Claims) HasAudience(audience string) bool {
	for _, a := range c.Audience() {
		if a == audience {
			return true
		}
	}
	return false
}

func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
