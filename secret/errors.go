package secret

import "errors"

var (
	// ErrMissingEnv indicates ${VAR} referenced a variable that is not set.
	ErrMissingEnv = errors.New("secret: missing environment variable")

	// ErrInvalidRef indicates a malformed secret reference.
	ErrInvalidRef = errors.New("secret: invalid reference")

	// ErrProviderNotFound indicates a reference named an unregistered provider.
	ErrProviderNotFound = errors.New("secret: provider not registered")

	// ErrNotFound indicates the provider has no secret for the reference.
	ErrNotFound = errors.New("secret: not found")

	// ErrEmptySecret indicates a strict resolver got an empty value.
	ErrEmptySecret = errors.New("secret: empty value")
)
