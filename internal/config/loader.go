// Package config provides configuration loading for the Loomchat server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for loomchat.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("loomchat")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: LOOMCHAT_SERVER_ADDR
	viper.SetEnvPrefix("LOOMCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a loomchat config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".loomchat"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "loomchat"))
		}
	} else {
		paths = append(paths, "/etc/loomchat")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for loomchat.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "loomchat"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: LOOMCHAT_DATABASE_DSN overrides database.dsn
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.read_timeout")
	_ = viper.BindEnv("server.write_timeout")

	// Database config
	_ = viper.BindEnv("database.driver")
	_ = viper.BindEnv("database.dsn")

	// Redis config
	_ = viper.BindEnv("redis.enabled")
	_ = viper.BindEnv("redis.addr")
	_ = viper.BindEnv("redis.password")
	_ = viper.BindEnv("redis.db")

	// Provider config — api_key via env is the recommended way to keep
	// secrets out of the YAML file.
	_ = viper.BindEnv("provider.base_url")
	_ = viper.BindEnv("provider.api_key")
	_ = viper.BindEnv("provider.referer")
	_ = viper.BindEnv("provider.title")
	_ = viper.BindEnv("provider.request_timeout")
	_ = viper.BindEnv("provider.pricing_file")
	// Note: provider.models is an array; use the config file for it.

	// Auth config
	_ = viper.BindEnv("auth.jwt_secret")
	_ = viper.BindEnv("auth.access_token_ttl")
	_ = viper.BindEnv("auth.session_ttl")

	// Rate limit config
	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	// Storage config
	_ = viper.BindEnv("storage.enabled")
	_ = viper.BindEnv("storage.bucket")
	_ = viper.BindEnv("storage.region")
	_ = viper.BindEnv("storage.endpoint")
	_ = viper.BindEnv("storage.presign_ttl")
	_ = viper.BindEnv("storage.max_upload_bytes")

	// Tracing
	_ = viper.BindEnv("tracing.enabled")

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
