package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known LLM provider names.
// Used by [Validate] to reject typos early.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Environment variables consulted by [ApplyEnv]. The SOPHIA_-prefixed
// variables win over the conventional ones.
const (
	EnvAPIKey      = "SOPHIA_LLM_API_KEY"
	EnvAPIKeyAlt   = "OPENAI_API_KEY"
	EnvPostgresDSN = "SOPHIA_POSTGRES_DSN"
	EnvPostgresAlt = "DATABASE_URL"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// for secrets, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment-provided secrets onto cfg. Values already set
// in the file are kept unless an environment variable overrides them —
// secrets belong in the environment, so the environment wins.
func ApplyEnv(cfg *Config) {
	if v := firstEnv(EnvAPIKey, EnvAPIKeyAlt); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := firstEnv(EnvPostgresDSN, EnvPostgresAlt); v != "" {
		cfg.Database.PostgresDSN = v
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		errs = append(errs, fmt.Errorf("provider.name %q is unknown; valid values: %v", cfg.Provider.Name, ValidProviderNames))
	}
	if cfg.Provider.Model == "" {
		errs = append(errs, errors.New("provider.model is required"))
	}

	for i, fb := range cfg.Fallbacks {
		if !slices.Contains(ValidProviderNames, fb.Name) {
			errs = append(errs, fmt.Errorf("fallback_providers[%d].name %q is unknown; valid values: %v", i, fb.Name, ValidProviderNames))
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("fallback_providers[%d].model is required", i))
		}
	}

	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature %.2f is out of range [0.0, 2.0]", cfg.Engine.Temperature))
	}
	if cfg.Engine.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.max_tokens must not be negative, got %d", cfg.Engine.MaxTokens))
	}
	if cfg.Engine.HistoryBudgetTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.history_budget_tokens must not be negative, got %d", cfg.Engine.HistoryBudgetTokens))
	}

	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("database.postgres_dsn is required (or set %s)", EnvPostgresDSN))
	}

	return errors.Join(errs...)
}
