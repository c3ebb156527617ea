// Package config provides the configuration schema, loader, and provider
// registry for the tutorcore decision layer.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/respcache"
)

// Duration wraps time.Duration so YAML configs can say "2s" or "48h".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects the persistence backend for a store.
type StoreBackend string

const (
	// BackendMemory keeps everything in process memory. For tests and
	// single-instance development only.
	BackendMemory StoreBackend = "memory"

	// BackendSQLite uses an embedded SQLite database file.
	BackendSQLite StoreBackend = "sqlite"

	// BackendPostgres uses a PostgreSQL database.
	BackendPostgres StoreBackend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case BackendMemory, BackendSQLite, BackendPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Provider    ProviderConfig    `yaml:"provider"`
	Models      ModelsConfig      `yaml:"models"`
	Cache       CacheConfig       `yaml:"cache"`
	State       StateConfig       `yaml:"state"`
	Guardrails  GuardrailsConfig  `yaml:"guardrails"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GuardrailsConfig mirrors [guardrails.Policy] with YAML-friendly types.
type GuardrailsConfig struct {
	MaxFallbackCallsPerSession int      `yaml:"max_fallback_calls_per_session"`
	FallbackTimeout            Duration `yaml:"fallback_timeout"`
	MaxTokensPerResponse       int      `yaml:"max_tokens_per_response"`
	MaxTokensPerSession        int      `yaml:"max_tokens_per_session"`
	MemoryExtractionInterval   int      `yaml:"memory_extraction_interval"`
	MaxMemoriesPerSession      int      `yaml:"max_memories_per_session"`
	MaxHistoryWindow           int      `yaml:"max_history_window"`
	RequestsPerMinute          int      `yaml:"requests_per_minute"`
}

// Policy converts the config form to the enforcement form.
func (g GuardrailsConfig) Policy() guardrails.Policy {
	return guardrails.Policy{
		MaxFallbackCallsPerSession: g.MaxFallbackCallsPerSession,
		FallbackTimeout:            g.FallbackTimeout.Std(),
		MaxTokensPerResponse:       g.MaxTokensPerResponse,
		MaxTokensPerSession:        g.MaxTokensPerSession,
		MemoryExtractionInterval:   g.MemoryExtractionInterval,
		MaxMemoriesPerSession:      g.MaxMemoriesPerSession,
		MaxHistoryWindow:           g.MaxHistoryWindow,
		RequestsPerMinute:          g.RequestsPerMinute,
	}
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level controls verbosity. Empty means info.
	Level LogLevel `yaml:"level"`

	// JSON switches the handler to JSON output.
	JSON bool `yaml:"json"`
}

// ProviderConfig selects and configures the LLM provider used for the two
// fallback calls (intent classification, complexity refinement).
type ProviderConfig struct {
	// Name is the provider identifier ("openai", "anthropic", "ollama", ...).
	// Empty disables the fallback paths entirely.
	Name string `yaml:"name"`

	// Model is the model identifier used for fallback calls.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key. Keys
	// never appear in config files.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider endpoint, for proxies and self-hosted
	// deployments.
	BaseURL string `yaml:"base_url"`

	// Options carries provider-specific settings.
	Options map[string]string `yaml:"options"`
}

// ModelsConfig names the model identifiers behind each routing tier.
type ModelsConfig struct {
	// Fast is the cheap, low-latency tier model.
	Fast string `yaml:"fast"`

	// Advanced is the expensive, high-capability tier model.
	Advanced string `yaml:"advanced"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Backend selects the persistent store.
	Backend StoreBackend `yaml:"backend"`

	// DSN is the PostgreSQL connection string (postgres backend).
	DSN string `yaml:"dsn"`

	// Path is the database file path (sqlite backend).
	Path string `yaml:"path"`

	// HotCapacity bounds the in-process hot cache. Zero means the default.
	HotCapacity int `yaml:"hot_capacity"`

	// HotTTL bounds how long a hot entry may serve without re-reading the
	// store. Zero means the default.
	HotTTL Duration `yaml:"hot_ttl"`

	// TTL overrides the retention tiers by content type. Zero values keep
	// the defaults.
	TTL CacheTTLConfig `yaml:"ttl"`
}

// CacheTTLConfig mirrors [respcache.TTLTiers] with YAML-friendly types.
type CacheTTLConfig struct {
	Factual      Duration `yaml:"factual"`
	Conceptual   Duration `yaml:"conceptual"`
	Procedural   Duration `yaml:"procedural"`
	Personalized Duration `yaml:"personalized"`
}

// Tiers converts the config form to the cache form.
func (t CacheTTLConfig) Tiers() respcache.TTLTiers {
	return respcache.TTLTiers{
		Factual:      t.Factual.Std(),
		Conceptual:   t.Conceptual.Std(),
		Procedural:   t.Procedural.Std(),
		Personalized: t.Personalized.Std(),
	}
}

// StateConfig configures the adaptive-state store.
type StateConfig struct {
	// Backend selects the persistent store.
	Backend StoreBackend `yaml:"backend"`

	// DSN is the PostgreSQL connection string (postgres backend).
	DSN string `yaml:"dsn"`

	// Path is the database file path (sqlite backend).
	Path string `yaml:"path"`

	// IdleExpiry is how long an untouched session snapshot is kept.
	IdleExpiry Duration `yaml:"idle_expiry"`
}

// MaintenanceConfig configures the periodic cleanup sweeps.
type MaintenanceConfig struct {
	// Schedule is a cron expression for the sweep cadence. Empty means
	// every 15 minutes.
	Schedule string `yaml:"schedule"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// ListenAddr is the address the metrics endpoint binds to. Empty
	// disables metrics serving.
	ListenAddr string `yaml:"listen_addr"`
}
