package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 8080
	DefaultLanguage = "en"
	DefaultMaxSteps = 8
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	AI      AIConfig      `yaml:"ai"`
	Logging LoggingConfig `yaml:"logging"`
	History HistoryConfig `yaml:"history"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	// Secret is read from WINGTERM_SECRET or prompted for; it is accepted
	// here for unattended setups but never written back.
	Secret string `yaml:"secret,omitempty"`
}

type AIConfig struct {
	Language string `yaml:"language"`
	MaxSteps int    `yaml:"max_steps"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: DefaultPort},
		AI:      AIConfig{Language: DefaultLanguage, MaxSteps: DefaultMaxSteps},
		Logging: LoggingConfig{Level: "info"},
		History: HistoryConfig{Enabled: true},
	}
}

// Load reads configuration from a file. A missing file yields defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if host := os.Getenv("WINGTERM_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("WINGTERM_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid WINGTERM_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if user := os.Getenv("WINGTERM_USER"); user != "" {
		cfg.Server.Username = user
	}
	if secret := os.Getenv("WINGTERM_SECRET"); secret != "" {
		cfg.Server.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. Connection fields are
// checked later, when a Connection is built, so a fresh install with an
// empty file still loads.
func (c *Config) Validate() error {
	if c.AI.Language == "" {
		c.AI.Language = DefaultLanguage
	}
	if c.AI.MaxSteps < 0 {
		return fmt.Errorf("ai.max_steps must not be negative")
	}
	if c.AI.MaxSteps == 0 {
		c.AI.MaxSteps = DefaultMaxSteps
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// Connection builds a connection config from the server section.
func (c *Config) Connection() Connection {
	return Connection{
		Host:     c.Server.Host,
		Port:     c.Server.Port,
		Username: c.Server.Username,
		Secret:   c.Server.Secret,
	}
}

// HistoryPath is where transcripts are kept, history.db in the user
// config directory unless overridden.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
