package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.TokenStore.Backend)
	assert.Equal(t, DefaultBranch, cfg.Git.Branch)
	assert.Contains(t, cfg.Content.HiddenFolders, ".sessions")
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`
server:
  port: 9999
git:
  branch: trunk
cleanup:
  sessionTimeoutHours: 2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "trunk", cfg.Git.Branch)
	assert.Equal(t, 2, cfg.Cleanup.SessionTimeoutHours)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultMaxSessions, cfg.TokenStore.MaxSessions)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("GITHUB_CLIENT_ID", "iv1.client")
	t.Setenv("GITHUB_CLIENT_SECRET", "s3cret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "iv1.client", cfg.OAuth.ClientID)
	assert.Equal(t, "s3cret", cfg.OAuth.ClientSecret)
}

func TestEnvRedisURLSelectsRedisBackend(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.TokenStore.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.TokenStore.RedisURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty workspace root", func(c *Config) { c.Workspace.Root = "" }, true},
		{"unknown backend", func(c *Config) { c.TokenStore.Backend = "etcd" }, true},
		{"redis without URL", func(c *Config) { c.TokenStore.Backend = "redis" }, true},
		{"non-positive session timeout", func(c *Config) { c.Cleanup.SessionTimeoutHours = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
