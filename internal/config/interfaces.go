package config

import "context"

// SecretProvider resolves SSM parameter paths to plaintext values. The SSM
// implementation serves deployed environments; EnvVarProvider serves local
// development and tests.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> plaintext value for every key
	// it could resolve. Missing keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
