// ABOUTME: Environment answers which providers have credentials outside project storage
// ABOUTME: Config file values win over process environment variables

package config

import (
	"os"
	"strings"

	"github.com/2389/parley/internal/llm"
)

// Environment resolves provider defaults and credentials from the loaded
// config and the process environment.
type Environment struct {
	cfg    *Config
	lookup func(string) (string, bool)
}

// NewEnvironment returns an Environment over cfg. A nil cfg uses only the
// process environment.
func NewEnvironment(cfg *Config) *Environment {
	return &Environment{cfg: cfg, lookup: os.LookupEnv}
}

// DefaultModel returns the configured default model for p, falling back to
// the provider table.
func (e *Environment) DefaultModel(p llm.Provider) string {
	if m := strings.TrimSpace(e.cfg.Provider(p).DefaultModel); m != "" {
		return m
	}
	return p.DefaultModel()
}

// Credential returns the environment credential for p. The second result is
// false when no API key is available.
func (e *Environment) Credential(p llm.Provider) (llm.ClientConfig, bool) {
	if !p.Valid() {
		return llm.ClientConfig{}, false
	}
	pc := e.cfg.Provider(p)

	key := strings.TrimSpace(pc.APIKey)
	if key == "" {
		key = e.env(p.CredentialEnv())
	}
	if key == "" {
		return llm.ClientConfig{}, false
	}

	baseURL := strings.TrimSpace(pc.BaseURL)
	if baseURL == "" {
		baseURL = e.env(p.BaseURLEnv())
	}
	return llm.ClientConfig{APIKey: key, BaseURL: baseURL}, true
}

// ConfiguredProviders lists providers with a credential, in table order.
func (e *Environment) ConfiguredProviders() []llm.Provider {
	var out []llm.Provider
	for _, p := range llm.Providers() {
		if _, ok := e.Credential(p); ok {
			out = append(out, p)
		}
	}
	return out
}

func (e *Environment) env(name string) string {
	if name == "" {
		return ""
	}
	v, _ := e.lookup(name)
	return strings.TrimSpace(v)
}
