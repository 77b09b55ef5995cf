// Package config provides the configuration schema for the Loomchat server.
//
// Configuration is file-based (loomchat.yaml) with environment variable
// overrides. The schema deliberately keeps deployment simple:
//
//   - SQLite by default, PostgreSQL via database.driver
//   - Sessions and rate limits in memory unless Redis is enabled
//   - Object storage optional; attachments fall back to an in-memory
//     blob store when disabled (single instance, lost on restart)
//   - NO TLS configuration (handle via reverse proxy)
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the Loomchat server.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the relational store for accounts, conversations
	// and usage accounting.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Redis configures the shared backend for sessions and rate limiting.
	// When disabled both fall back to in-memory stores (single instance only).
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Provider configures the OpenRouter-compatible completion API.
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`

	// Auth configures token issuance and session lifetimes.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// RateLimit configures the tiered sliding-window limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Storage configures S3-compatible object storage for attachments.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Tracing enables span export for chat requests.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables development conveniences (debug logging, relaxed
	// secret validation). Never enable in production.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// Only HTTP is supported; terminate TLS at a reverse proxy.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:8080", ":8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ReadTimeout and WriteTimeout bound request handling (e.g., "30s").
	// WriteTimeout must accommodate the longest streamed completion;
	// defaults to "5m".
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout" validate:"omitempty,duration"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout" validate:"omitempty,duration"`

	// AllowedOrigins is the CORS origin allowlist for browser clients.
	// Empty means no cross-origin access.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver selects the database engine: "sqlite" or "postgres".
	// Defaults to "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`

	// DSN is the connection string. For sqlite a file path
	// (e.g., "file:loomchat.db"); for postgres a URL or key=value DSN.
	// Defaults to "file:loomchat.db" under the sqlite driver.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Enabled turns Redis on for sessions and rate limiting.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the Redis host:port. Required when enabled.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the Redis AUTH password (optional).
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis logical database number.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0,max=15"`
}

// ProviderConfig configures the completion provider.
type ProviderConfig struct {
	// BaseURL is the API base (e.g., "https://openrouter.ai/api/v1").
	// Defaults to the OpenRouter public endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// APIKey authenticates against the provider. Required outside DevMode.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Referer and Title are attribution headers OpenRouter uses for
	// rankings. Optional.
	Referer string `yaml:"referer" mapstructure:"referer" validate:"omitempty,url"`
	Title   string `yaml:"title" mapstructure:"title"`

	// RequestTimeout bounds one completion call, including streaming
	// (e.g., "2m"). Defaults to "5m".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`

	// Models is the served model catalog with per-tier gating.
	// Empty gets a built-in default catalog.
	Models []ModelConfig `yaml:"models" mapstructure:"models" validate:"omitempty,dive"`

	// PricingFile optionally overrides the built-in per-model pricing
	// (YAML, microdollars per 1M tokens).
	PricingFile string `yaml:"pricing_file" mapstructure:"pricing_file"`
}

// ModelConfig declares one servable model.
type ModelConfig struct {
	// ID is the provider model identifier (e.g., "openai/gpt-4o-mini").
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// MinTier is the lowest subscription tier allowed to use the model.
	// Valid values: "free", "pro", "enterprise". Defaults to "free".
	MinTier string `yaml:"min_tier" mapstructure:"min_tier" validate:"omitempty,oneof=free pro enterprise"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	// JWTSecret signs access tokens. Must be at least 32 bytes outside
	// DevMode. Required.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`

	// AccessTokenTTL is the access token lifetime (e.g., "15m").
	// Defaults to "15m".
	AccessTokenTTL string `yaml:"access_token_ttl" mapstructure:"access_token_ttl" validate:"omitempty,duration"`

	// SessionTTL is the refresh session lifetime (e.g., "720h" = 30 days).
	// Defaults to "720h".
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl" validate:"omitempty,duration"`
}

// RateLimitConfig configures the tiered limiter.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CleanupInterval is how often expired window entries are swept in
	// the in-memory limiter (e.g., "5m"). Ignored with Redis.
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is the maximum age of an idle window before removal in the
	// in-memory limiter (e.g., "1h"). Ignored with Redis. Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// StorageConfig configures S3-compatible object storage.
type StorageConfig struct {
	// Enabled turns S3 storage on. When false attachment blobs are kept
	// in memory, which only suits development.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Bucket is the bucket name. Required when enabled.
	Bucket string `yaml:"bucket" mapstructure:"bucket"`

	// Region is the bucket region. Required when enabled.
	Region string `yaml:"region" mapstructure:"region"`

	// Endpoint overrides the S3 endpoint for MinIO and other
	// S3-compatible stores. Empty uses AWS.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// PresignTTL is the download URL lifetime (e.g., "15m"). Defaults to "15m".
	PresignTTL string `yaml:"presign_ttl" mapstructure:"presign_ttl" validate:"omitempty,duration"`

	// MaxUploadBytes caps a single attachment upload. Defaults to 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"omitempty,min=1"`

	// AllowedMIMETypes is the upload content type allowlist.
	// Defaults to common image types.
	AllowedMIMETypes []string `yaml:"allowed_mime_types" mapstructure:"allowed_mime_types"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled turns span export on. Defaults to false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Duration parses a validated duration field. The zero duration is
// returned for empty strings; call after Validate so malformed values
// have already been rejected.
func Duration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Server.LogLevel == "" || c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	// A throwaway signing key so the server starts without a config file.
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-only-insecure-signing-key-0123456789"
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = "dev-placeholder"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults — bind to localhost only. Users who need network
	// access must explicitly set addr: ":8080" or "0.0.0.0:8080".
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "30s"
	}
	// Long write timeout: SSE completions can run for minutes.
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "5m"
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "file:loomchat.db"
	}

	// Provider defaults
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Provider.RequestTimeout == "" {
		c.Provider.RequestTimeout = "5m"
	}
	if len(c.Provider.Models) == 0 {
		c.Provider.Models = []ModelConfig{
			{ID: "openai/gpt-4o-mini", MinTier: "free"},
			{ID: "meta-llama/llama-3.3-70b", MinTier: "free"},
			{ID: "openai/gpt-4o", MinTier: "pro"},
			{ID: "anthropic/claude-sonnet-4", MinTier: "pro"},
		}
	}
	for i := range c.Provider.Models {
		if c.Provider.Models[i].MinTier == "" {
			c.Provider.Models[i].MinTier = "free"
		}
	}

	// Auth defaults
	if c.Auth.AccessTokenTTL == "" {
		c.Auth.AccessTokenTTL = "15m"
	}
	if c.Auth.SessionTTL == "" {
		c.Auth.SessionTTL = "720h"
	}

	// Rate limit defaults — enabled unless explicitly switched off.
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	// Storage defaults
	if c.Storage.PresignTTL == "" {
		c.Storage.PresignTTL = "15m"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}
	if len(c.Storage.AllowedMIMETypes) == 0 {
		c.Storage.AllowedMIMETypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}
	}
}
