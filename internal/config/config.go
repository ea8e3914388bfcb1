// Package config loads and validates the application configuration from a
// JSON file with environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultScopes is the scope set requested when none is configured.
var DefaultScopes = []string{"openid", "profile", "email"}

// Config holds all configuration for the service. Auth carries the OAuth
// client settings; the rest configures the host process.
type Config struct {
	HTTPPort    int    `json:"http_port" validate:"gte=0"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`
	LogLevel    string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	DBPath      string `json:"db_path"`

	Auth AuthConfig `json:"auth"`
}

// AuthConfig is the immutable OAuth client configuration. It is supplied
// once at construction and never mutated by the core.
type AuthConfig struct {
	ClientID            string   `json:"client_id" validate:"required"`
	ClientSecret        string   `json:"client_secret" validate:"required"`
	RedirectURL         string   `json:"redirect_url" validate:"required,url"`
	Scopes              []string `json:"scopes"`
	AllowedEmailDomains []string `json:"allowed_email_domains"`
	RefreshBuffer       Duration `json:"refresh_buffer"`
	StorageKey          string   `json:"storage_key"`
}

// ScopeString returns the space-joined scope parameter, falling back to
// DefaultScopes.
func (a AuthConfig) ScopeString() string {
	scopes := a.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return strings.Join(scopes, " ")
}

// Duration is a time.Duration that unmarshals from either a number of
// nanoseconds or a string like "5m".
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads configuration from a file and overrides with environment
// variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AUTH_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("AUTH_CLIENT_SECRET"); v != "" {
		c.Auth.ClientSecret = v
	}
	if v := os.Getenv("AUTH_REDIRECT_URL"); v != "" {
		c.Auth.RedirectURL = v
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
		c.HTTPPort = port
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
		c.MetricsPort = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()

	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	for _, domain := range c.Auth.AllowedEmailDomains {
		if domain == "" || strings.Contains(domain, "@") {
			return fmt.Errorf("invalid allowed email domain %q", domain)
		}
	}

	return nil
}
