// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
server:
  http_addr: "0.0.0.0:9090"

assistant:
  mode: "remote"
  provider: "anthropic"
  model: "claude-test"
  api_key: "sk-test"
  base_url: "https://llm.internal/v1"
  instructions: "Only talk about food."
  timeout: "30s"
  max_tokens: 256
  replay_ttl: "15m"
  replay_max_entries: 50

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}

	a := cfg.Assistant
	if a.Mode != "remote" {
		t.Errorf("Assistant.Mode = %q, want %q", a.Mode, "remote")
	}
	if a.Provider != "anthropic" {
		t.Errorf("Assistant.Provider = %q, want %q", a.Provider, "anthropic")
	}
	if a.Model != "claude-test" {
		t.Errorf("Assistant.Model = %q, want %q", a.Model, "claude-test")
	}
	if a.APIKey != "sk-test" {
		t.Errorf("Assistant.APIKey = %q, want %q", a.APIKey, "sk-test")
	}
	if a.BaseURL != "https://llm.internal/v1" {
		t.Errorf("Assistant.BaseURL = %q, want %q", a.BaseURL, "https://llm.internal/v1")
	}
	if a.Instructions != "Only talk about food." {
		t.Errorf("Assistant.Instructions = %q", a.Instructions)
	}
	if a.Timeout != 30*time.Second {
		t.Errorf("Assistant.Timeout = %v, want %v", a.Timeout, 30*time.Second)
	}
	if a.MaxTokens != 256 {
		t.Errorf("Assistant.MaxTokens = %d, want 256", a.MaxTokens)
	}
	if a.ReplayTTL != 15*time.Minute {
		t.Errorf("Assistant.ReplayTTL = %v, want %v", a.ReplayTTL, 15*time.Minute)
	}
	if a.ReplayMaxEntries != 50 {
		t.Errorf("Assistant.ReplayMaxEntries = %d, want 50", a.ReplayMaxEntries)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv("TEST_CHAT_KEY", "key-from-env")

	configPath := writeConfig(t, "chat.toml", `
[server]
http_addr = "127.0.0.1:7070"

[assistant]
mode = "direct"
provider = "openai"
api_key = "${TEST_CHAT_KEY}"
timeout = "5s"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:7070" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:7070")
	}
	if cfg.Assistant.Mode != "direct" {
		t.Errorf("Assistant.Mode = %q, want %q", cfg.Assistant.Mode, "direct")
	}
	if cfg.Assistant.Provider != "openai" {
		t.Errorf("Assistant.Provider = %q, want %q", cfg.Assistant.Provider, "openai")
	}
	if cfg.Assistant.APIKey != "key-from-env" {
		t.Errorf("Assistant.APIKey = %q, want %q", cfg.Assistant.APIKey, "key-from-env")
	}
	if cfg.Assistant.Timeout != 5*time.Second {
		t.Errorf("Assistant.Timeout = %v, want %v", cfg.Assistant.Timeout, 5*time.Second)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, DefaultLogFormat)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", "assistant:\n  api_key: \"sk\"\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Assistant.Mode != DefaultMode {
		t.Errorf("Assistant.Mode = %q, want %q", cfg.Assistant.Mode, DefaultMode)
	}
	if cfg.Assistant.Provider != DefaultProvider {
		t.Errorf("Assistant.Provider = %q, want %q", cfg.Assistant.Provider, DefaultProvider)
	}
	if cfg.Assistant.Model != DefaultModel {
		t.Errorf("Assistant.Model = %q, want %q", cfg.Assistant.Model, DefaultModel)
	}
	if cfg.Assistant.Timeout != DefaultTimeout {
		t.Errorf("Assistant.Timeout = %v, want %v", cfg.Assistant.Timeout, DefaultTimeout)
	}
	if cfg.Assistant.ReplayTTL != DefaultReplayTTL {
		t.Errorf("Assistant.ReplayTTL = %v, want %v", cfg.Assistant.ReplayTTL, DefaultReplayTTL)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("TEST_TS_AUTHKEY", "tskey-from-env")

	configPath := writeConfig(t, "chat.yaml", `
tailscale:
  enabled: true
  hostname: "chat-test"
  auth_key: "${TEST_TS_AUTHKEY}"
assistant:
  api_key: "${TEST_OPENAI_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Assistant.APIKey != "sk-from-env" {
		t.Errorf("Assistant.APIKey = %q, want %q", cfg.Assistant.APIKey, "sk-from-env")
	}
	if cfg.Tailscale.AuthKey != "tskey-from-env" {
		t.Errorf("Tailscale.AuthKey = %q, want %q", cfg.Tailscale.AuthKey, "tskey-from-env")
	}
	if cfg.Server.HTTPAddr != "" {
		t.Errorf("Server.HTTPAddr = %q, want empty when tailscale is enabled", cfg.Server.HTTPAddr)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, "chat.yaml", `
assistant:
  api_key: "${UNSET_VAR_FOR_TEST}"
  model: "literal-model"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Assistant.APIKey != "" {
		t.Errorf("Assistant.APIKey = %q, want empty string for unset env var", cfg.Assistant.APIKey)
	}
	if cfg.Assistant.Model != "literal-model" {
		t.Errorf("Assistant.Model = %q, want %q", cfg.Assistant.Model, "literal-model")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/chat.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
server:
  http_addr "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", "[server\nhttp_addr = 1\n")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "timeout", content: "assistant:\n  timeout: \"soon\"\n", field: "timeout"},
		{name: "replay ttl", content: "assistant:\n  replay_ttl: \"forever\"\n", field: "replay_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "chat.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error for invalid duration, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %q, want mention of %q", err.Error(), tt.field)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name:          "unknown mode",
			configContent: "assistant:\n  mode: \"psychic\"\n",
			wantErrSubstr: "assistant.mode",
		},
		{
			name:          "unknown provider",
			configContent: "assistant:\n  provider: \"carrier-pigeon\"\n",
			wantErrSubstr: "assistant.provider",
		},
		{
			name:          "negative max tokens",
			configContent: "assistant:\n  max_tokens: -1\n",
			wantErrSubstr: "assistant.max_tokens",
		},
		{
			name:          "negative timeout",
			configContent: "assistant:\n  timeout: \"-5s\"\n",
			wantErrSubstr: "assistant.timeout",
		},
		{
			name:          "unknown log format",
			configContent: "logging:\n  format: \"xml\"\n",
			wantErrSubstr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "chat.yaml", tt.configContent))
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidate_TailscaleConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Assistant: AssistantConfig{Mode: "remote", Provider: "responses"},
			Logging:   LoggingConfig{Format: "text"},
		}
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name: "tailscale enabled allows empty server address",
			mutate: func(c *Config) {
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "coven-chat"}
			},
		},
		{
			name: "tailscale enabled requires hostname",
			mutate: func(c *Config) {
				c.Tailscale = TailscaleConfig{Enabled: true}
			},
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name: "tailscale disabled requires server address",
			mutate: func(c *Config) {
				c.Tailscale = TailscaleConfig{Hostname: "coven-chat"}
			},
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "plain tcp listener",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = "localhost:8080"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}
