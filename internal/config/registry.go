package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lessonloop/tutorcore/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds an LLM provider from its configuration entry.
type Factory func(ProviderConfig) (llm.Provider, error)

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]Factory)}
}

// RegisterLLM registers a factory under name, replacing any previous one.
func (r *Registry) RegisterLLM(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM builds the provider selected by entry.Name.
func (r *Registry) CreateLLM(entry ProviderConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create llm provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// APIKey resolves the provider's API key from the configured environment
// variable. Returns empty when no variable is configured or it is unset.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}
