package config

import (
	"strings"
	"testing"
)

// validConfig returns a minimal production-shaped config that passes
// validation. Tests mutate one field at a time.
func validConfig() Config {
	cfg := Config{
		Auth: AuthConfig{
			JWTSecret: strings.Repeat("k", 32),
		},
		Provider: ProviderConfig{
			APIKey: "sk-or-test",
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MissingJWTSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Validate() = %v, want jwt_secret error", err)
	}
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.JWTSecret = "too-short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("Validate() = %v, want secret length error", err)
	}
}

func TestValidate_MissingProviderKey(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Provider.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "provider.api_key") {
		t.Errorf("Validate() = %v, want api_key error", err)
	}
}

func TestValidate_DevModeRelaxesSecrets(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DevMode = true
	cfg.Auth.JWTSecret = "short"
	cfg.Provider.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() in dev mode = %v, want nil", err)
	}
}

func TestValidate_BadDriver(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Database.Driver = "oracle"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "one of") {
		t.Errorf("Validate() = %v, want oneof error", err)
	}
}

func TestValidate_PostgresWithSQLiteDSN(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "file:loomchat.db"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite driver") {
		t.Errorf("Validate() = %v, want DSN mismatch error", err)
	}
}

func TestValidate_PostgresWithoutDSN(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "database.dsn") {
		t.Errorf("Validate() = %v, want missing DSN error", err)
	}
}

func TestValidate_RedisEnabledWithoutAddr(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Redis.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "redis.addr") {
		t.Errorf("Validate() = %v, want redis.addr error", err)
	}
}

func TestValidate_StorageEnabledRequiresBucket(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Region = "us-east-1"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "storage.bucket") {
		t.Errorf("Validate() = %v, want storage.bucket error", err)
	}

	cfg.Storage.Bucket = "loomchat-attachments"
	cfg.Storage.Region = ""
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "storage.region") {
		t.Errorf("Validate() = %v, want storage.region error", err)
	}
}

func TestValidate_BadMIMEType(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Bucket = "loomchat-attachments"
	cfg.Storage.Region = "us-east-1"
	cfg.Storage.AllowedMIMETypes = []string{"png"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "not a MIME type") {
		t.Errorf("Validate() = %v, want MIME type error", err)
	}
}

func TestValidate_BadDuration(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.AccessTokenTTL = "fifteen minutes"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duration") {
		t.Errorf("Validate() = %v, want duration error", err)
	}
}

func TestValidate_BadModelTier(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Provider.Models = []ModelConfig{{ID: "openai/gpt-4o", MinTier: "platinum"}}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "one of") {
		t.Errorf("Validate() = %v, want oneof error", err)
	}
}

func TestValidate_ModelMissingID(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Provider.Models = []ModelConfig{{MinTier: "free"}}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("Validate() = %v, want required error", err)
	}
}
