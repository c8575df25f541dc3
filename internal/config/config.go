package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskboard.yml.
type Config struct {
	Server struct {
		Listen   string `yaml:"listen"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
	DefaultLabels []string `yaml:"default_labels"`
}

// Load reads and validates config from the workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run tb init to generate one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if no file exists.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("config.server.listen is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return fmt.Errorf("config.admin.password is required when admin.email is set")
	}
	for _, name := range c.DefaultLabels {
		if name == "" {
			return fmt.Errorf("config.default_labels contains an empty name")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// Default returns the built-in config. The JWT secret is intentionally
// empty; serving without one fails fast in the server package.
func Default() *Config {
	var cfg Config
	cfg.Server.Listen = "127.0.0.1:8080"
	cfg.Server.BasePath = "/api"
	cfg.Auth.Issuer = "taskboard"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Admin.Email = os.Getenv("ADMIN_EMAIL")
	cfg.Admin.Password = os.Getenv("ADMIN_PASSWORD")
	cfg.DefaultLabels = []string{"feature", "bug"}
	return &cfg
}

// GenerateDefault returns default config YAML for tb init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  listen: 127.0.0.1:8080
  base_path: /api

auth:
  # Set a real secret before serving; tokens are HS256-signed with it.
  jwt_secret: ""
  issuer: taskboard
  token_ttl: 1h

admin:
  email: ""
  password: ""

default_labels: [feature, bug]
`
