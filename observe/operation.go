package observe

import "strings"

// Operation identifies a unit of instrumented work, such as a token
// verification or a key set fetch.
type Operation struct {
	Component string // e.g. "auth"
	Name      string // e.g. "verify", "jwks.fetch"
	Target    string // endpoint or issuer the operation talks to (optional)
}

// Validate reports whether the operation can be instrumented.
func (o Operation) Validate() error {
	if strings.TrimSpace(o.Component) == "" || strings.TrimSpace(o.Name) == "" {
		return ErrMissingOperationName
	}
	return nil
}

// SpanName returns the span and metric prefix for the operation:
// <component>.<name>.
func (o Operation) SpanName() string {
	return o.Component + "." + o.Name
}
