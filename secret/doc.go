// Package secret resolves secret references in configuration values.
//
// Values are first expanded against the environment (see ExpandEnvStrict),
// then any reference of the form
//
//	secretref:<provider>:<ref>
//
// is replaced by the value the named Provider returns. A reference may make
// up the whole value or appear inline:
//
//	secretref:file:/run/secrets/jwks_client_secret
//	Bearer secretref:env:UPSTREAM_TOKEN
//
// The env and file providers are registered in DefaultRegistry.
package secret
