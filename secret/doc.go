// Package secret resolves credentials referenced from provider configuration.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider, EnvProvider, FileProvider)
//   - Resolving references anywhere inside a configuration map (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:SMS_API_KEY
//   - Inline use:  Bearer secretref:file:chat/token
package secret
