package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Search.DefaultPageSize = 20
	cfg.Search.MaxPageSize = 100
	cfg.Search.HistoryMaxSize = 50
	cfg.Consumer.MaxAttempts = 3
	cfg.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid without secret", mutate: func(c *Config) {}},
		{name: "valid with secret", mutate: func(c *Config) { c.Auth.JWTSecret = "a-long-enough-random-secret" }},
		{name: "placeholder secret", mutate: func(c *Config) { c.Auth.JWTSecret = "super-secret-key" }, wantErr: "placeholder"},
		{name: "placeholder secret any case", mutate: func(c *Config) { c.Auth.JWTSecret = "Super-Secret-Key" }, wantErr: "placeholder"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "tooshort" }, wantErr: "at least"},
		{name: "page sizes", mutate: func(c *Config) { c.Search.MaxPageSize = 10 }, wantErr: "page sizes"},
		{name: "history size", mutate: func(c *Config) { c.Search.HistoryMaxSize = 0 }, wantErr: "history_max_size"},
		{name: "attempts", mutate: func(c *Config) { c.Consumer.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "addresses", mutate: func(c *Config) { c.Elasticsearch.Addresses = nil }, wantErr: "addresses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAuthValidateRequiresSecret(t *testing.T) {
	assert.ErrorContains(t, (&AuthConfig{}).Validate(), "required")
	assert.ErrorContains(t, (&AuthConfig{JWTSecret: "super-secret-key"}).Validate(), "placeholder")
	assert.NoError(t, (&AuthConfig{JWTSecret: "a-long-enough-random-secret"}).Validate())
}

func TestLoadHasNoDefaultSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("search")
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Error(t, cfg.Auth.Validate())
}
