// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Missing values fall back to defaults and the result is validated.
//
// # Configuration File
//
// The binary looks for its file in this order:
//
//  1. Path from the COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// A path ending in .toml is decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
//	assistant:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//
//	tailscale:
//	  enabled: false
//	  hostname: "coven-chat"
//	  auth_key: "${TS_AUTHKEY}"
//
//	assistant:
//	  mode: "remote"          # remote, direct
//	  provider: "responses"   # responses, openai, anthropic
//	  model: "gpt-4o-mini"
//	  timeout: "60s"
//	  replay_ttl: "1h"        # stateless providers only
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/coven/chat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
