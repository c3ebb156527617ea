package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lessonloop/tutorcore/internal/guardrails"
)

// ValidProviderNames lists known LLM provider names. [Validate] warns about
// unrecognised names instead of failing, so new providers can be trialled
// without a code change.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq",
	"llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogInfo
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = BackendMemory
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendMemory
	}
	if cfg.Maintenance.Schedule == "" {
		cfg.Maintenance.Schedule = "@every 15m"
	}
	if cfg.State.IdleExpiry == 0 {
		cfg.State.IdleExpiry = Duration(48 * time.Hour)
	}
	if cfg.Models.Fast == "" {
		cfg.Models.Fast = "gpt-4o-mini"
	}
	if cfg.Models.Advanced == "" {
		cfg.Models.Advanced = "gpt-4o"
	}

	def := guardrails.DefaultPolicy()
	g := &cfg.Guardrails
	if g.FallbackTimeout == 0 {
		g.FallbackTimeout = Duration(def.FallbackTimeout)
	}
	if g.MaxTokensPerResponse == 0 {
		g.MaxTokensPerResponse = def.MaxTokensPerResponse
	}
	if g.MaxTokensPerSession == 0 {
		g.MaxTokensPerSession = def.MaxTokensPerSession
	}
	if g.MemoryExtractionInterval == 0 {
		g.MemoryExtractionInterval = def.MemoryExtractionInterval
	}
	if g.MaxMemoriesPerSession == 0 {
		g.MaxMemoriesPerSession = def.MaxMemoriesPerSession
	}
	if g.MaxHistoryWindow == 0 {
		g.MaxHistoryWindow = def.MaxHistoryWindow
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.Provider.Name != "" && !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unrecognised provider name; fallback calls may fail at startup",
			"name", cfg.Provider.Name)
	}
	if cfg.Provider.Name == "" {
		slog.Warn("no provider configured; intent and complexity fallbacks are disabled")
	}
	if cfg.Provider.Name != "" && cfg.Provider.Model == "" {
		errs = append(errs, fmt.Errorf("provider.model is required when provider.name is set"))
	}

	if !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Cache.Backend))
	}
	switch cfg.Cache.Backend {
	case BackendPostgres:
		if cfg.Cache.DSN == "" {
			errs = append(errs, fmt.Errorf("cache.dsn is required for the postgres backend"))
		}
	case BackendSQLite:
		if cfg.Cache.Path == "" {
			errs = append(errs, fmt.Errorf("cache.path is required for the sqlite backend"))
		}
	case BackendMemory:
		slog.Warn("cache.backend is memory; cached responses will not survive restarts")
	}
	if cfg.Cache.HotCapacity < 0 {
		errs = append(errs, fmt.Errorf("cache.hot_capacity must be >= 0, got %d", cfg.Cache.HotCapacity))
	}
	if cfg.Cache.HotTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.hot_ttl must be >= 0, got %s", cfg.Cache.HotTTL.Std()))
	}
	if cfg.Cache.TTL.Factual < 0 || cfg.Cache.TTL.Conceptual < 0 ||
		cfg.Cache.TTL.Procedural < 0 || cfg.Cache.TTL.Personalized < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl tiers must be >= 0"))
	}

	if !cfg.State.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("state.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.State.Backend))
	}
	if cfg.State.Backend == BackendPostgres && cfg.State.DSN == "" {
		errs = append(errs, fmt.Errorf("state.dsn is required for the postgres backend"))
	}
	if cfg.State.Backend == BackendSQLite && cfg.State.Path == "" {
		errs = append(errs, fmt.Errorf("state.path is required for the sqlite backend"))
	}
	if cfg.State.IdleExpiry < 0 {
		errs = append(errs, fmt.Errorf("state.idle_expiry must be >= 0, got %s", cfg.State.IdleExpiry.Std()))
	}

	if err := cfg.Guardrails.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validate: %w", errors.Join(errs...))
	}
	return nil
}
