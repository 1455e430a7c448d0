package health

import (
	"context"
	"time"

	"github.com/jonwraymond/tokengate/auth"
)

// KeySetSource reports and refreshes a cached key set.
// auth.CachingKeyProvider implements it.
type KeySetSource interface {
	Status() auth.KeySetStatus
	Refresh(ctx context.Context) error
}

// JWKSChecker reports whether signing keys are available for verification.
type JWKSChecker struct {
	source KeySetSource
}

// NewJWKSChecker creates a checker over source.
func NewJWKSChecker(source KeySetSource) *JWKSChecker {
	return &JWKSChecker{source: source}
}

func (c *JWKSChecker) Name() string { return "jwks" }

// Check loads the key set if it was never fetched. A stale or empty key set
// is degraded, a missing one unhealthy.
func (c *JWKSChecker) Check(ctx context.Context) Result {
	status := c.source.Status()
	if status.LastRefresh.IsZero() {
		if err := c.source.Refresh(ctx); err != nil {
			return Unhealthy("signing keys unavailable", err).
				WithDetails(map[string]any{"endpoint": status.Endpoint})
		}
		status = c.source.Status()
	}

	details := map[string]any{
		"endpoint":     status.Endpoint,
		"keys":         status.Keys,
		"last_refresh": status.LastRefresh.UTC().Format(time.RFC3339),
	}

	switch {
	case status.Stale:
		r := Degraded("serving previous key set").WithDetails(details)
		r.Error = status.LastError
		return r
	case status.Keys == 0:
		return Degraded("key set is empty").WithDetails(details)
	default:
		return Healthy("key set loaded").WithDetails(details)
	}
}
