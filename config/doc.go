// Package config loads the gateway configuration.
//
// Sources are applied in order: an optional .env file, struct defaults, a
// YAML file, TOKENGATE_* environment variables, then secret references.
// Nested keys map to variables by upper-casing and joining with
// underscores, so auth.issuer is read from TOKENGATE_AUTH_ISSUER.
package config
