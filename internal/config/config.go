// ABOUTME: Configuration loading and parsing for parley
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

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/usage"
)

// Defaults applied when a field is omitted.
const (
	DefaultMaxSteps        = llm.DefaultMaxSteps
	DefaultMaxOutputTokens = 4096
	DefaultPersistTimeout  = 5 * time.Second
	DefaultTestsDir        = "tests"
	DefaultOutputDir       = "tests/outputs"
	DefaultEvalModel       = "openai:gpt-4.1"
)

// Config represents the complete parley configuration
type Config struct {
	Database  DatabaseConfig            `yaml:"database" toml:"database"`
	Logging   LoggingConfig             `yaml:"logging" toml:"logging"`
	Agent     AgentConfig               `yaml:"agent" toml:"agent"`
	Providers map[string]ProviderConfig `yaml:"providers" toml:"providers"`
	Pricing   map[string]PriceConfig    `yaml:"pricing" toml:"pricing"`
	Eval      EvalConfig                `yaml:"eval" toml:"eval"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
	// Secret seals stored provider API keys. Empty stores them as plaintext.
	Secret string `yaml:"secret" toml:"secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AgentConfig controls agent sessions
type AgentConfig struct {
	MaxSteps        int    `yaml:"max_steps" toml:"max_steps"`
	MaxOutputTokens int    `yaml:"max_output_tokens" toml:"max_output_tokens"`
	Instructions    string `yaml:"instructions" toml:"instructions"`

	PersistTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PersistTimeoutRaw string `yaml:"persist_timeout" toml:"persist_timeout"`
}

// ProviderConfig overrides a provider's environment credential and default model.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key" toml:"api_key"`
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	DefaultModel string `yaml:"default_model" toml:"default_model"`
}

// PriceConfig is USD per million tokens.
type PriceConfig struct {
	Input      float64 `yaml:"input" toml:"input"`
	Output     float64 `yaml:"output" toml:"output"`
	CacheRead  float64 `yaml:"cache_read" toml:"cache_read"`
	CacheWrite float64 `yaml:"cache_write" toml:"cache_write"`
}

// EvalConfig configures the prompt evaluation runner
type EvalConfig struct {
	TestsDir          string   `yaml:"tests_dir" toml:"tests_dir"`
	OutputDir         string   `yaml:"output_dir" toml:"output_dir"`
	ProjectID         string   `yaml:"project_id" toml:"project_id"`
	UserID            string   `yaml:"user_id" toml:"user_id"`
	Models            []string `yaml:"models" toml:"models"`
	Parallel          int      `yaml:"parallel" toml:"parallel"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
	// Database is a SQLite file the reference sql of cases runs against.
	// Empty skips data verification.
	Database string `yaml:"database" toml:"database"`
	// Tolerance for numeric cells during data verification.
	RelTolerance float64 `yaml:"rtol" toml:"rtol"`
	AbsTolerance float64 `yaml:"atol" toml:"atol"`
}

// Default returns a configuration with every default applied and the
// database at path.
func Default(path string) *Config {
	cfg := &Config{Database: DatabaseConfig{Path: path}}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, everything else as YAML.
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

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = DefaultMaxSteps
	}
	if cfg.Agent.MaxOutputTokens == 0 {
		cfg.Agent.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Agent.PersistTimeout == 0 {
		cfg.Agent.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Eval.TestsDir == "" {
		cfg.Eval.TestsDir = DefaultTestsDir
	}
	if cfg.Eval.OutputDir == "" {
		cfg.Eval.OutputDir = DefaultOutputDir
	}
	if len(cfg.Eval.Models) == 0 {
		cfg.Eval.Models = []string{DefaultEvalModel}
	}
	if cfg.Eval.Parallel == 0 {
		cfg.Eval.Parallel = 1
	}
	if cfg.Eval.ProjectID == "" {
		cfg.Eval.ProjectID = "eval"
	}
	if cfg.Eval.UserID == "" {
		cfg.Eval.UserID = "eval"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.MaxOutputTokens < 1 {
		return fmt.Errorf("agent.max_output_tokens must be positive, got %d", c.Agent.MaxOutputTokens)
	}
	if c.Agent.PersistTimeout < 0 {
		return fmt.Errorf("agent.persist_timeout must not be negative")
	}

	for name := range c.Providers {
		if _, err := llm.ParseProvider(name); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}

	for key, p := range c.Pricing {
		if p.Input < 0 || p.Output < 0 || p.CacheRead < 0 || p.CacheWrite < 0 {
			return fmt.Errorf("pricing.%s: prices must not be negative", key)
		}
	}

	if c.Eval.Parallel < 1 {
		return fmt.Errorf("eval.parallel must be at least 1, got %d", c.Eval.Parallel)
	}
	if c.Eval.RequestsPerSecond < 0 {
		return fmt.Errorf("eval.requests_per_second must not be negative")
	}
	if c.Eval.RelTolerance < 0 || c.Eval.AbsTolerance < 0 {
		return fmt.Errorf("eval.rtol and eval.atol must not be negative")
	}
	for _, m := range c.Eval.Models {
		if !strings.Contains(m, ":") {
			return fmt.Errorf("eval.models: %q must be provider:model_id", m)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.PersistTimeoutRaw != "" {
		cfg.Agent.PersistTimeout, err = time.ParseDuration(cfg.Agent.PersistTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing persist_timeout %q: %w", cfg.Agent.PersistTimeoutRaw, err)
		}
	}

	return nil
}

// PricingTable returns the built-in pricing with configured entries layered on top.
func (c *Config) PricingTable() usage.Pricing {
	overrides := make(usage.Pricing, len(c.Pricing))
	for key, p := range c.Pricing {
		overrides[key] = usage.Price{
			Input:      p.Input,
			Output:     p.Output,
			CacheRead:  p.CacheRead,
			CacheWrite: p.CacheWrite,
		}
	}
	return usage.DefaultPricing().Merge(overrides)
}

// Provider returns the configured overrides for p, if any.
func (c *Config) Provider(p llm.Provider) ProviderConfig {
	if c == nil {
		return ProviderConfig{}
	}
	if pc, ok := c.Providers[string(p)]; ok {
		return pc
	}
	// Keys are matched case-insensitively, like ParseProvider.
	for name, pc := range c.Providers {
		if strings.EqualFold(strings.TrimSpace(name), string(p)) {
			return pc
		}
	}
	return ProviderConfig{}
}
