package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// A variable FOO_SSM_PARAM=/path names the SSM parameter holding FOO.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

const ssmResolveTimeout = 30 * time.Second

// loaderDeps lets tests run the loader without touching the process
// environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the configuration:
//
//  1. pins time.Local to UTC (migration ids are UTC timestamps)
//  2. loads .env if present, without overriding the environment
//  3. outside APP_ENV=local, resolves *_SSM_PARAM indirections through
//     provider and exports the results
//  4. populates Config with envconfig and validates it
//
// provider may be nil for local runs.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// A missing .env is the normal case outside development.
	_ = deps.dotenv()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); !IsLocal(appEnv) {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}

// ResolveSecrets performs only the SSM step, for callers that read
// individual variables themselves. It is a no-op when APP_ENV=local.
func ResolveSecrets(provider SecretProvider) error {
	if IsLocal(os.Getenv("APP_ENV")) {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// IsLocal reports whether appEnv names the local environment. An unset
// APP_ENV means local.
func IsLocal(appEnv string) bool {
	return appEnv == "" || appEnv == localEnv
}

// resolveSSMParams finds every FOO_SSM_PARAM whose FOO is unset, fetches
// the referenced parameters in one batch and exports them as FOO. A FOO that
// is already set wins over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	targets := make(map[string]string) // SSM path -> variable
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		targets[path] = target
	}
	if len(targets) == 0 {
		return nil
	}

	paths := make([]string, 0, len(targets))
	for path := range targets {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required outside local (need to resolve: %s)", joinTargets(paths, targets)),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		if err := deps.setEnv(targets[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to export %s", targets[path]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("SSM parameters not found for: %s", joinTargets(missing, targets)),
		}
	}
	return nil
}

func joinTargets(paths []string, targets map[string]string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = targets[p]
	}
	return strings.Join(names, ", ")
}
