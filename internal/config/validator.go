package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// minJWTSecretLen is the minimum signing key size outside DevMode.
const minJWTSecretLen = 32

// RegisterCustomValidators registers Loomchat-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings ("30s", "5m", "1h30m")
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSecrets(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

// validateSecrets enforces the signing key and provider key requirements.
// DevMode relaxes both so the server can start with zero configuration.
func (c *Config) validateSecrets() error {
	if c.DevMode {
		return nil
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or set dev_mode: true)")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}
	if c.Provider.APIKey == "" {
		return errors.New("provider.api_key is required (or set dev_mode: true)")
	}
	return nil
}

// validateDatabase checks driver-specific DSN requirements.
func (c *Config) validateDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" {
		// Accept URL or key=value DSNs; reject obvious sqlite paths.
		if strings.HasPrefix(c.Database.DSN, "file:") {
			return errors.New("database.dsn: file: DSNs are for the sqlite driver")
		}
	}
	return nil
}

// validateRedis requires an address when Redis is enabled.
func (c *Config) validateRedis() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is true")
	}
	return nil
}

// validateStorage requires bucket and region when storage is enabled.
func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage.enabled is true")
	}
	if c.Storage.Region == "" {
		return errors.New("storage.region is required when storage.enabled is true")
	}
	for i, mt := range c.Storage.AllowedMIMETypes {
		if !strings.Contains(mt, "/") {
			return fmt.Errorf("storage.allowed_mime_types[%d]: %q is not a MIME type", i, mt)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration (e.g. \"30s\", \"5m\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
