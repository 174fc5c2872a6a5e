package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/introspect-ai/sophia/internal/config"
)

// validYAML is a minimal config that passes validation.
const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
provider:
  name: openai
  model: gpt-4
database:
  postgres_dsn: "postgres://localhost/sophia"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := validYAML + "\nsurprise: true\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_MissingProvider(t *testing.T) {
	yaml := `
database:
  postgres_dsn: "postgres://localhost/sophia"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing provider, got nil")
	}
	if !strings.Contains(err.Error(), "provider.name") {
		t.Errorf("error should mention provider.name, got: %v", err)
	}
	if !strings.Contains(err.Error(), "provider.model") {
		t.Errorf("error should mention provider.model, got: %v", err)
	}
}

func TestValidate_UnknownProviderName(t *testing.T) {
	yaml := `
provider:
  name: skynet
  model: t-800
database:
  postgres_dsn: "postgres://localhost/sophia"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown provider name, got nil")
	}
	if !strings.Contains(err.Error(), "skynet") {
		t.Errorf("error should mention the bad name, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: loud
provider:
  name: openai
  model: gpt-4
database:
  postgres_dsn: "postgres://localhost/sophia"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for bad log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TemperatureOutOfRange(t *testing.T) {
	yaml := `
provider:
  name: openai
  model: gpt-4
engine:
  temperature: 3.5
database:
  postgres_dsn: "postgres://localhost/sophia"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range temperature, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should mention temperature, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	yaml := `
server:
  tls:
    cert_file: /etc/sophia/cert.pem
provider:
  name: openai
  model: gpt-4
database:
  postgres_dsn: "postgres://localhost/sophia"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_MissingDSN(t *testing.T) {
	// Clear the env fallbacks so the file value is the only source.
	t.Setenv(config.EnvPostgresDSN, "")
	t.Setenv(config.EnvPostgresAlt, "")

	yaml := `
provider:
  name: openai
  model: gpt-4
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing DSN, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error should mention postgres_dsn, got: %v", err)
	}
}

func TestValidate_FallbackProviders(t *testing.T) {
	yaml := validYAML + `
fallback_providers:
  - name: ollama
    model: llama3
  - name: mystery
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid fallback entry, got nil")
	}
	if !strings.Contains(err.Error(), "fallback_providers[1]") {
		t.Errorf("error should name the bad entry, got: %v", err)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "sk-from-env")
	t.Setenv(config.EnvPostgresDSN, "postgres://env/sophia")

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, want env value", cfg.Provider.APIKey)
	}
	if cfg.Database.PostgresDSN != "postgres://env/sophia" {
		t.Errorf("dsn = %q, want env value", cfg.Database.PostgresDSN)
	}
}

func TestApplyEnv_AltNamesAreFallbacks(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvAPIKeyAlt, "sk-alt")

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-alt" {
		t.Errorf("api key = %q, want %q", cfg.Provider.APIKey, "sk-alt")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("provider name = %q", cfg.Provider.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
