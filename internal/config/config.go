// Package config loads and validates the fathom configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rand/fathom/internal/router"
)

// RecursionConfig controls query decomposition.
type RecursionConfig struct {
	// Enabled toggles decomposition; when false every query is answered
	// in a single direct call.
	Enabled bool `yaml:"enabled"`

	// MaxDepth caps recursion depth.
	MaxDepth int `yaml:"max_depth"`

	// ComplexityThreshold is the minimum complexity score that allows a
	// split. Zero keeps the built-in default.
	ComplexityThreshold int `yaml:"complexity_threshold"`

	// MaxParallel bounds concurrent model calls per session.
	MaxParallel int `yaml:"max_parallel"`
}

// ModelConfig selects the model and its sampling controls.
type ModelConfig struct {
	// Name optionally pins a concrete model id. Tier is used otherwise.
	Name string `yaml:"name"`

	// Tier is the default capability tier: fast, balanced, powerful or
	// reasoning.
	Tier string `yaml:"tier"`

	// Effort and Temperature are mutually exclusive.
	Effort      string   `yaml:"effort"`
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps each model response.
	MaxTokens int `yaml:"max_tokens"`

	// CallTimeout bounds each model call.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// BudgetConfig sets session spending limits.
type BudgetConfig struct {
	// Tokens is the per-session token ceiling. Negative means
	// unlimited, zero forbids sub-calls entirely.
	Tokens int64 `yaml:"tokens"`
}

// MemoryConfig controls the retrieval cache and document corpus.
type MemoryConfig struct {
	// CacheCapacity is the retrieval cache entry cap.
	CacheCapacity int `yaml:"cache_capacity"`

	// Documents maps scope names to document file paths.
	Documents map[string]string `yaml:"documents"`
}

// TraceConfig controls resolution trace persistence.
type TraceConfig struct {
	// Enabled toggles the trace store.
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database file. Empty keeps traces in memory.
	Path string `yaml:"path"`
}

// Config is the full application configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Recursion RecursionConfig `yaml:"recursion"`
	Budget    BudgetConfig    `yaml:"budget"`
	Memory    MemoryConfig    `yaml:"memory"`
	Trace     TraceConfig     `yaml:"trace"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Tier:        router.TierBalanced.String(),
			MaxTokens:   1024,
			CallTimeout: 60 * time.Second,
		},
		Recursion: RecursionConfig{
			Enabled:     true,
			MaxDepth:    2,
			MaxParallel: 4,
		},
		Budget: BudgetConfig{
			Tokens: -1,
		},
		Memory: MemoryConfig{
			CacheCapacity: 256,
		},
		LogLevel: "info",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "fathom.yaml"
	}
	return filepath.Join(dir, "fathom", "fathom.yaml")
}

// Load reads the config at path, layering it over defaults. A missing
// file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the resolver would refuse at runtime.
func (c *Config) Validate() error {
	if c.Model.Effort != "" && c.Model.Temperature != nil {
		return errors.New("model.effort and model.temperature are mutually exclusive")
	}
	if c.Model.Effort != "" && !router.ValidEffort(c.Model.Effort) {
		return fmt.Errorf("unknown model.effort %q", c.Model.Effort)
	}
	if c.Model.Temperature != nil {
		if t := *c.Model.Temperature; t < 0 || t > 2 {
			return fmt.Errorf("model.temperature %v out of range [0, 2]", t)
		}
	}
	if c.Recursion.MaxDepth < 0 {
		return errors.New("recursion.max_depth must not be negative")
	}
	if c.Recursion.MaxParallel < 1 {
		return errors.New("recursion.max_parallel must be at least 1")
	}
	if c.Memory.CacheCapacity < 1 {
		return errors.New("memory.cache_capacity must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Tier parses the configured tier name.
func (c *Config) Tier() router.Tier {
	return router.ParseTier(c.Model.Tier)
}
