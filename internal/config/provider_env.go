package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves keys as environment variable names, so
// FOO_SSM_PARAM can name another variable instead of an SSM path. It is a
// stand-in for SSMProvider where parameters are already exported, as in tests
// or a container that injects them; LoadConfig only consults a provider
// outside APP_ENV=local.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Unset keys are
// omitted from the result.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = v
		}
	}
	return out, nil
}
