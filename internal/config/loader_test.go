package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
logging:
  level: debug
provider:
  name: openai
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
models:
  fast: gpt-4o-mini
  advanced: gpt-4o
cache:
  backend: sqlite
  path: /var/lib/tutorcore/cache.db
  hot_capacity: 128
  hot_ttl: 2m
  ttl:
    factual: 96h
state:
  backend: memory
  idle_expiry: 48h
guardrails:
  max_fallback_calls_per_session: 5
  fallback_timeout: 3s
  max_tokens_per_response: 700
  max_tokens_per_session: 15000
maintenance:
  schedule: "@every 10m"
`

func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Logging.Level != LogDebug {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Cache.Backend != BackendSQLite || cfg.Cache.Path == "" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.HotTTL.Std() != 2*time.Minute {
		t.Errorf("cache.hot_ttl = %s, want 2m", cfg.Cache.HotTTL.Std())
	}
	if got := cfg.Cache.TTL.Tiers().Factual; got != 96*time.Hour {
		t.Errorf("cache.ttl.factual = %s, want 96h", got)
	}
	if cfg.Guardrails.MaxFallbackCallsPerSession != 5 {
		t.Errorf("guardrails.max_fallback_calls_per_session = %d, want 5", cfg.Guardrails.MaxFallbackCallsPerSession)
	}
	if cfg.Maintenance.Schedule != "@every 10m" {
		t.Errorf("maintenance.schedule = %q", cfg.Maintenance.Schedule)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Logging.Level != LogInfo {
		t.Errorf("default logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Cache.Backend != BackendMemory || cfg.State.Backend != BackendMemory {
		t.Errorf("default backends = %q / %q, want memory", cfg.Cache.Backend, cfg.State.Backend)
	}
	if cfg.Maintenance.Schedule == "" {
		t.Error("default maintenance schedule should be set")
	}
	if err := cfg.Guardrails.Policy().Validate(); err != nil {
		t.Errorf("default guardrails should validate: %v", err)
	}
}

func TestLoadFromReaderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "logging:\n  verbosity: loud\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"postgres cache without dsn", "cache:\n  backend: postgres\n"},
		{"sqlite cache without path", "cache:\n  backend: sqlite\n"},
		{"bad backend", "cache:\n  backend: etcd\n"},
		{"provider without model", "provider:\n  name: openai\n"},
		{"guardrail budget below cap", "guardrails:\n  max_tokens_per_response: 800\n  max_tokens_per_session: 100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadFromReader(strings.NewReader(tt.yaml)); err == nil {
				t.Errorf("config %q should not validate", tt.yaml)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	base, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	t.Run("no changes", func(t *testing.T) {
		t.Parallel()
		other := *base
		if d := Diff(base, &other); d.Any() {
			t.Errorf("identical configs should produce an empty diff, got %+v", d)
		}
	})

	t.Run("log level", func(t *testing.T) {
		t.Parallel()
		other := *base
		other.Logging.Level = LogError
		d := Diff(base, &other)
		if !d.LogLevelChanged || d.NewLogLevel != LogError {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("guardrails", func(t *testing.T) {
		t.Parallel()
		other := *base
		other.Guardrails.MaxTokensPerResponse = 999
		if d := Diff(base, &other); !d.GuardrailsChanged {
			t.Errorf("diff = %+v", d)
		}
	})

	t.Run("models", func(t *testing.T) {
		t.Parallel()
		other := *base
		other.Models.Advanced = "gpt-5"
		if d := Diff(base, &other); !d.ModelsChanged {
			t.Errorf("diff = %+v", d)
		}
	})
}
