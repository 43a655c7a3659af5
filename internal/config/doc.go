// Package config handles configuration loading for parley.
//
// # Overview
//
// Configuration is loaded from YAML files (or TOML when the file ends in
// .toml) with environment variable expansion, defaults, and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/config.yaml
//  3. ~/.config/parley/config.yaml
//
// # Environment Variable Expansion
//
//	providers:
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	database:
//	  path: "~/.local/share/parley/parley.db"
//	  secret: "${PARLEY_DB_SECRET}"   # seals stored API keys
//
//	logging:
//	  level: "info"                   # trace, debug, info, warn, error
//	  format: "text"                  # text or json
//
//	agent:
//	  max_steps: 10
//	  max_output_tokens: 4096
//	  persist_timeout: "5s"
//	  instructions: ""                # text/template override
//
//	providers:
//	  openai:
//	    base_url: "https://proxy.internal/v1"
//	    default_model: "gpt-4.1-mini"
//
//	pricing:
//	  "openai:gpt-4.1-mini": {input: 0.4, output: 1.6, cache_read: 0.1}
//
//	eval:
//	  tests_dir: "tests"
//	  output_dir: "tests/outputs"
//	  models: ["openai:gpt-4.1"]
//	  parallel: 1
//	  requests_per_second: 0
//	  database: "./warehouse.db"  # reference sql of cases runs here
//	  rtol: 0.00001
//	  atol: 0.00000001
//
// # Environment
//
// Environment answers the agent's credential questions: a provider's API key
// comes from providers.<name>.api_key, else from its environment variable
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY).
package config
