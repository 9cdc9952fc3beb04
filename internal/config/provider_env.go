package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by treating each key as an
// environment variable name.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch returns the keys present in the environment.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

// ProviderFromEnv picks the secret provider for the current process: the
// environment itself when APP_ENV=local, SSM otherwise. AWS_ENDPOINT_URL
// points SSM at LocalStack.
func ProviderFromEnv() SecretProvider {
	if os.Getenv("APP_ENV") == localEnv {
		return NewEnvVarProvider()
	}
	var opts []SSMOption
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, WithSSMEndpoint(endpoint))
	}
	return NewSSMProvider(os.Getenv("AWS_REGION"), opts...)
}
