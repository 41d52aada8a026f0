// Package config loads the backend configuration from a JSON or YAML file
// with environment variable overrides applied on top. A missing file is
// not an error — defaults plus environment form a usable dev config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host" env:"TEAMKARD_HOST"`
	Port int    `json:"port" yaml:"port" env:"TEAMKARD_PORT"`
}

// DatabaseConfig locates the SQLite database file shared by the kanban
// and messenger stores.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path" env:"TEAMKARD_DB"`
}

// AuthConfig configures identity token verification.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" env:"TEAMKARD_JWT_SECRET"`
	CacheSize int    `json:"cache_size" yaml:"cache_size" env:"TEAMKARD_AUTH_CACHE_SIZE"`
}

// GitHubConfig holds the OAuth application credentials for repository
// integration.
type GitHubConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id" env:"TEAMKARD_GITHUB_CLIENT_ID"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" env:"TEAMKARD_GITHUB_CLIENT_SECRET"`
}

// RetentionConfig drives the janitor sweep of old messenger data.
type RetentionConfig struct {
	Schedule       string `json:"schedule" yaml:"schedule" env:"TEAMKARD_RETENTION_SCHEDULE"`
	MessageTTLDays int    `json:"message_ttl_days" yaml:"message_ttl_days" env:"TEAMKARD_MESSAGE_TTL_DAYS"`
}

// LoggingConfig sets the process log level.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" env:"TEAMKARD_LOG_LEVEL"`
}

// Config is the root configuration document.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	GitHub    GitHubConfig    `json:"github" yaml:"github"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() *Config {
	return &Config{
		Gateway:  GatewayConfig{Host: "127.0.0.1", Port: 8790},
		Database: DatabaseConfig{Path: "teamkard.db"},
		Auth:     AuthConfig{CacheSize: 1024},
		Retention: RetentionConfig{
			Schedule:       "0 3 * * *",
			MessageTTLDays: 180,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path (JSON or YAML, decided by the file
// extension) and applies environment overrides. When path is empty or the
// file does not exist, defaults plus environment are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only config
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse json config %s: %w", path, err)
		}
	}
	return nil
}

// Addr returns the host:port the gateway listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
