// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve :443 with Tailscale-issued certs
}

// AssistantConfig selects how replies are produced
type AssistantConfig struct {
	Mode             string `yaml:"mode" toml:"mode"`         // remote or direct
	Provider         string `yaml:"provider" toml:"provider"` // responses, openai, anthropic
	Model            string `yaml:"model" toml:"model"`
	APIKey           string `yaml:"api_key" toml:"api_key"`
	BaseURL          string `yaml:"base_url" toml:"base_url"`
	Instructions     string `yaml:"instructions" toml:"instructions"`
	MaxTokens        int    `yaml:"max_tokens" toml:"max_tokens"`
	ReplayMaxEntries int    `yaml:"replay_max_entries" toml:"replay_max_entries"`

	Timeout   time.Duration `yaml:"-" toml:"-"`
	ReplayTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw   string `yaml:"timeout" toml:"timeout"`
	ReplayTTLRaw string `yaml:"replay_ttl" toml:"replay_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults applied by Load when a field is left empty
const (
	DefaultHTTPAddr  = "localhost:8080"
	DefaultHostname  = "coven-chat"
	DefaultMode      = "remote"
	DefaultProvider  = "responses"
	DefaultModel     = "gpt-4o-mini"
	DefaultTimeout   = 60 * time.Second
	DefaultReplayTTL = time.Hour
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultHostname
	}
	if c.Assistant.Mode == "" {
		c.Assistant.Mode = DefaultMode
	}
	if c.Assistant.Provider == "" {
		c.Assistant.Provider = DefaultProvider
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = DefaultModel
	}
	if c.Assistant.Timeout == 0 {
		c.Assistant.Timeout = DefaultTimeout
	}
	if c.Assistant.ReplayTTL == 0 {
		c.Assistant.ReplayTTL = DefaultReplayTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Assistant.Mode {
	case "remote", "direct":
	default:
		return fmt.Errorf("assistant.mode must be remote or direct, got %q", c.Assistant.Mode)
	}

	switch c.Assistant.Provider {
	case "responses", "openai", "anthropic":
	default:
		return fmt.Errorf("assistant.provider must be responses, openai or anthropic, got %q", c.Assistant.Provider)
	}

	if c.Assistant.Timeout < 0 {
		return fmt.Errorf("assistant.timeout must not be negative")
	}
	if c.Assistant.MaxTokens < 0 {
		return fmt.Errorf("assistant.max_tokens must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.TimeoutRaw != "" {
		cfg.Assistant.Timeout, err = time.ParseDuration(cfg.Assistant.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Assistant.TimeoutRaw, err)
		}
	}

	if cfg.Assistant.ReplayTTLRaw != "" {
		cfg.Assistant.ReplayTTL, err = time.ParseDuration(cfg.Assistant.ReplayTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay_ttl %q: %w", cfg.Assistant.ReplayTTLRaw, err)
		}
	}

	return nil
}
