package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func validConfig() map[string]any {
	return map[string]any{
		"http_port":    8080,
		"metrics_port": 9090,
		"log_level":    "info",
		"db_path":      "./auth.db",
		"auth": map[string]any{
			"client_id":      "client-id",
			"client_secret":  "client-secret",
			"redirect_url":   "http://localhost:8080/auth/callback",
			"refresh_buffer": "5m",
		},
	}
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig()))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "client-id", cfg.Auth.ClientID)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RefreshBuffer.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/config.json")
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	cfg, err := Load(path)
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{
			name: "missing client id",
			mutate: func(c map[string]any) {
				c["auth"].(map[string]any)["client_id"] = ""
			},
		},
		{
			name: "redirect url not a url",
			mutate: func(c map[string]any) {
				c["auth"].(map[string]any)["redirect_url"] = "not-a-url"
			},
		},
		{
			name: "bad log level",
			mutate: func(c map[string]any) {
				c["log_level"] = "loud"
			},
		},
		{
			name: "allowed domain contains @",
			mutate: func(c map[string]any) {
				c["auth"].(map[string]any)["allowed_email_domains"] = []string{"user@example.com"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validConfig()
			tt.mutate(raw)
			cfg, err := Load(writeConfig(t, raw))
			assert.Nil(t, cfg)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_CLIENT_ID", "env-client-id")
	t.Setenv("AUTH_CLIENT_SECRET", "env-secret")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("DB_PATH", "/tmp/override.db")

	cfg, err := Load(writeConfig(t, validConfig()))
	require.NoError(t, err)

	assert.Equal(t, "env-client-id", cfg.Auth.ClientID)
	assert.Equal(t, "env-secret", cfg.Auth.ClientSecret)
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")

	cfg, err := Load(writeConfig(t, validConfig()))
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestScopeString(t *testing.T) {
	var a AuthConfig
	assert.Equal(t, "openid profile email", a.ScopeString())

	a.Scopes = []string{"openid", "email"}
	assert.Equal(t, "openid email", a.ScopeString())
}

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"string form", `"90s"`, 90 * time.Second, false},
		{"numeric nanoseconds", `60000000000`, time.Minute, false},
		{"bad string", `"ninety"`, 0, true},
		{"bad type", `[1]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.raw), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}
