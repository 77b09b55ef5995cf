package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "file:loomchat.db" {
		t.Errorf("DSN = %q, want file:loomchat.db", cfg.Database.DSN)
	}
	if cfg.Provider.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("BaseURL = %q", cfg.Provider.BaseURL)
	}
	if len(cfg.Provider.Models) == 0 {
		t.Error("default model catalog is empty")
	}
	if cfg.Storage.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.Storage.MaxUploadBytes, 10<<20)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled should default to true")
	}
}

func TestConfig_SetDefaults_PostgresKeepsDSNEmpty(t *testing.T) {
	t.Parallel()

	cfg := Config{Database: DatabaseConfig{Driver: "postgres"}}
	cfg.SetDefaults()

	// No sqlite default for a postgres driver; validation catches it.
	if cfg.Database.DSN != "" {
		t.Errorf("DSN = %q, want empty for postgres", cfg.Database.DSN)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{Addr: ":9090", WriteTimeout: "10m"},
		Provider: ProviderConfig{
			Models: []ModelConfig{{ID: "openai/gpt-4o", MinTier: "pro"}},
		},
		Storage: StorageConfig{MaxUploadBytes: 1 << 20},
	}
	cfg.SetDefaults()

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr was overwritten: got %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.WriteTimeout != "10m" {
		t.Errorf("WriteTimeout was overwritten: got %q, want %q", cfg.Server.WriteTimeout, "10m")
	}
	if len(cfg.Provider.Models) != 1 || cfg.Provider.Models[0].ID != "openai/gpt-4o" {
		t.Errorf("Models was overwritten: got %+v", cfg.Provider.Models)
	}
	if cfg.Storage.MaxUploadBytes != 1<<20 {
		t.Errorf("MaxUploadBytes was overwritten: got %d, want %d", cfg.Storage.MaxUploadBytes, 1<<20)
	}
}

func TestConfig_SetDefaults_ModelMinTier(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Provider: ProviderConfig{
			Models: []ModelConfig{{ID: "openai/gpt-4o-mini"}},
		},
	}
	cfg.SetDefaults()

	if cfg.Provider.Models[0].MinTier != "free" {
		t.Errorf("MinTier = %q, want free", cfg.Provider.Models[0].MinTier)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug in dev mode", cfg.Server.LogLevel)
	}
	if cfg.Auth.JWTSecret == "" {
		t.Error("dev mode should provide a signing key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("dev-mode config should validate: %v", err)
	}
}

func TestConfig_SetDevDefaults_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if cfg.Auth.JWTSecret != "" {
		t.Error("SetDevDefaults set a secret with DevMode off")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration("90s"); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v", got)
	}
	if got := Duration(""); got != 0 {
		t.Errorf("Duration(empty) = %v, want 0", got)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "loomchat.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "loomchat" with no extension
	_ = os.WriteFile(filepath.Join(dir, "loomchat"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "loomchat.yaml")
	ymlPath := filepath.Join(dir, "loomchat.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
