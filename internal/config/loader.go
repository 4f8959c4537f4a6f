package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gitscribe/pkg/logging"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Load reads configuration from configPath (a directory containing
// config.yaml). A missing file is not an error; the defaults apply.
// Environment variables override both defaults and file values for the
// credential fields that should not live on disk.
func Load(configPath string) (Config, error) {
	cfg := GetDefaultConfig()

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("Config", "Loaded configuration from %s", configFilePath)

	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// applyEnvOverrides pulls secrets and deployment-specific values from the
// environment. The OAuth variable names follow the provider convention so
// existing deployments keep working.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITHUB_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("GITHUB_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := os.Getenv("GITHUB_SCOPE"); v != "" {
		cfg.OAuth.Scope = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.TokenStore.RedisURL = v
		cfg.TokenStore.Backend = "redis"
	}
	if v := os.Getenv("GITSCRIBE_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("GIT_SSH_KEY_PATH"); v != "" {
		cfg.Git.SSHKeyPath = v
	}
}

// Validate rejects configurations that cannot possibly serve requests.
// Soft misconfiguration (for example a missing OAuth client id) is allowed
// here and reported by the component that needs the value.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Workspace.Root == "" {
		return errors.New("workspace root must not be empty")
	}
	if c.TokenStore.Backend != "memory" && c.TokenStore.Backend != "redis" {
		return fmt.Errorf("unknown token store backend %q", c.TokenStore.Backend)
	}
	if c.TokenStore.Backend == "redis" && c.TokenStore.RedisURL == "" {
		return errors.New("token store backend is redis but no redis URL is configured")
	}
	if c.Cleanup.SessionTimeoutHours <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.Cleanup.SessionTimeoutHours)
	}
	return nil
}
