// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigurationMissing is wrapped by every error reporting an absent
// required setting. The server refuses to start when it is returned.
var ErrConfigurationMissing = errors.New("configuration missing")

// Config represents the main configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Auth         AuthConfig         `yaml:"auth"`
	Engine       EngineConfig       `yaml:"engine"`
	Search       SearchConfig       `yaml:"search"`
	Instructions InstructionsConfig `yaml:"instructions"`
	RunStore     RunStoreConfig     `yaml:"run_store"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects log level and format
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// AuthConfig holds the bearer token callers must present.
// An empty APIKey disables authorization.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// EngineConfig contains completion backend and orchestration policy settings
type EngineConfig struct {
	Backend       string        `yaml:"backend"`        // "openai" (default) or "mock"
	ModelEndpoint string        `yaml:"model_endpoint"` // empty targets api.openai.com
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"` // per upstream call

	// QueryModel, when set, replaces the caller's model for the
	// query-generation turns only.
	QueryModel string `yaml:"query_model"`

	// HighAccuracyModels lists model names that trigger a second
	// query/search round.
	HighAccuracyModels []string `yaml:"high_accuracy_models"`
}

// SearchConfig selects and configures the web search provider
type SearchConfig struct {
	Provider   string        `yaml:"provider"`  // "google", "serper", "brave", "tavily"
	APIKey     string        `yaml:"api_key"`   //
	EngineID   string        `yaml:"engine_id"` // google only
	Endpoint   string        `yaml:"endpoint"`  // optional API URL override
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RunStoreConfig selects where orchestration traces are recorded
type RunStoreConfig struct {
	Type    string `yaml:"type"`     // "memory" (default), "sqlite", "postgres", "none"
	DSN     string `yaml:"dsn"`      // file path for sqlite, connection URL for postgres
	MaxRuns int    `yaml:"max_runs"` // memory only
}

// Params returns the search settings as a provider registry parameter map.
func (c SearchConfig) Params() map[string]string {
	params := map[string]string{
		"api_key":   c.APIKey,
		"engine_id": c.EngineID,
		"endpoint":  c.Endpoint,
	}
	if c.MaxResults > 0 {
		params["max_results"] = fmt.Sprint(c.MaxResults)
	}
	if c.Timeout > 0 {
		params["timeout"] = c.Timeout.String()
	}
	return params
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Env applies after the file so provider keys follow the final provider.
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns default configuration with environment overrides applied
func Default() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    61347,
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			Backend: "openai",
			Timeout: 60 * time.Second,
		},
		Search: SearchConfig{
			Provider: "serper",
			Timeout:  30 * time.Second,
		},
		RunStore: RunStoreConfig{
			Type:    "memory",
			MaxRuns: 1000,
		},
	}
}

// applyEnv loads environment variables (override file config)
func applyEnv(cfg *Config) {
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Engine.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_ENDPOINT"); v != "" {
		cfg.Engine.ModelEndpoint = v
	}

	if v := os.Getenv("SEARCH_PROVIDER"); v != "" && v != cfg.Search.Provider {
		// Credentials configured for the previous provider do not carry over.
		cfg.Search.Provider = v
		cfg.Search.APIKey = ""
		cfg.Search.EngineID = ""
	}
	// Provider-specific keys only apply to the provider they belong to.
	keyEnv := map[string]string{
		"google": "GOOGLE_API_KEY",
		"serper": "SERPER_API_KEY",
		"brave":  "BRAVE_API_KEY",
		"tavily": "TAVILY_API_KEY",
	}
	if name, ok := keyEnv[cfg.Search.Provider]; ok {
		if v := os.Getenv(name); v != "" {
			cfg.Search.APIKey = v
		}
	}
	if v := os.Getenv("GOOGLE_CSE_ID"); v != "" && cfg.Search.Provider == "google" {
		cfg.Search.EngineID = v
	}

	if v := os.Getenv("INSTRUCTIONS_PATH"); v != "" {
		cfg.Instructions.Path = v
	}

	if v := os.Getenv("RUN_STORE_TYPE"); v != "" {
		cfg.RunStore.Type = v
	}
	if v := os.Getenv("RUN_STORE_DSN"); v != "" {
		cfg.RunStore.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = "openai"
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = 60 * time.Second
	}
	if cfg.RunStore.Type == "" {
		cfg.RunStore.Type = "memory"
	}
	if cfg.RunStore.MaxRuns == 0 {
		cfg.RunStore.MaxRuns = 1000
	}
}

// Validate reports every required setting that is absent. Instruction text
// is checked separately by Instructions.Validate once it has been loaded.
func (c *Config) Validate() error {
	var missing []string

	switch c.Engine.Backend {
	case "openai":
		if c.Engine.APIKey == "" && c.Engine.ModelEndpoint == "" {
			missing = append(missing, "engine.api_key (OPENAI_API_KEY)")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown engine backend %q", c.Engine.Backend)
	}

	if c.Search.Provider == "" {
		missing = append(missing, "search.provider")
	}
	if c.Search.APIKey == "" {
		missing = append(missing, "search.api_key")
	}
	if c.Search.Provider == "google" && c.Search.EngineID == "" {
		missing = append(missing, "search.engine_id (GOOGLE_CSE_ID)")
	}

	if (c.RunStore.Type == "sqlite" || c.RunStore.Type == "postgres") && c.RunStore.DSN == "" {
		missing = append(missing, "run_store.dsn")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}
