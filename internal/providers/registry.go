package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrProviderNotFound is returned when no client is registered under a name.
var ErrProviderNotFound = errors.New("LLM client not found")

// Provider types understood by the registry.
const (
	TypeMock       = MockClientName
	TypeOpenRouter = OpenRouterName
	TypeOpenAI     = OpenAIName
	TypeAnthropic  = AnthropicName
	TypeGemini     = GeminiName
)

// Registry holds named LLM clients. It supports config-driven instantiation
// and hot reload, and is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llmClients map[string]LLMClient
	configs    map[string]LLMProviderConfig
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients: make(map[string]LLMClient),
		configs:    make(map[string]LLMProviderConfig),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	delete(r.configs, name)
	r.logger.Info("registered LLM client", "name", name)
}

// UnregisterLLM removes an LLM client by name.
func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.llmClients, name)
	delete(r.configs, name)
	r.logger.Info("unregistered LLM client", "name", name)
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return client, nil
}

// Resolve returns the named client, falling back to the mock client when the
// name is not registered. The boolean reports whether the fallback was used.
func (r *Registry) Resolve(name string) (LLMClient, bool, error) {
	client, err := r.GetLLM(name)
	if err == nil {
		return client, false, nil
	}
	mock, mockErr := r.GetLLM(MockClientName)
	if mockErr != nil {
		return nil, false, err
	}
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	logger.Warn("LLM provider unavailable, using mock client", "requested", name)
	return mock, true, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.LLMProviderCfg with the API key resolved.
type LLMProviderConfig struct {
	Type       string // "mock", "openrouter", "openai", "anthropic", "gemini"
	Model      string
	APIKey     string
	BaseURL    string
	RateLimit  int // Requests per minute (0 = unlimited)
	MaxRetries int
	Enabled    bool
}

// usable reports whether a provider entry can be instantiated.
func (c LLMProviderConfig) usable() bool {
	if !c.Enabled {
		return false
	}
	return c.Type == TypeMock || c.APIKey != ""
}

// NewRegistryFromConfig creates a registry holding the mock client plus every
// enabled provider that has an API key.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.llmClients[MockClientName] = NewMockClient()
	r.applyConfig(cfg)
	return r
}

// Reload updates the registry based on new configuration. Providers no longer
// configured are removed and providers whose settings changed are rebuilt.
// The mock client is always kept.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := map[string]bool{MockClientName: true}
	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.usable() {
			continue
		}
		want[name] = true

		_, hasExisting := r.llmClients[name]
		if hasExisting && r.configs[name] == provCfg {
			continue
		}
		client, err := createLLMClient(provCfg)
		if err != nil {
			r.logger.Warn("failed to create LLM client", "name", name, "type", provCfg.Type, "error", err)
			continue
		}
		r.llmClients[name] = client
		r.configs[name] = provCfg
		if hasExisting {
			r.logger.Info("updated LLM client", "name", name, "type", provCfg.Type)
		} else {
			r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type)
		}
	}

	for name := range r.llmClients {
		if !want[name] {
			delete(r.llmClients, name)
			delete(r.configs, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}
	if _, ok := r.llmClients[MockClientName]; !ok {
		r.llmClients[MockClientName] = NewMockClient()
	}
}

// applyConfig applies configuration without locking (used during init).
func (r *Registry) applyConfig(cfg RegistryConfig) {
	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.usable() {
			continue
		}
		client, err := createLLMClient(provCfg)
		if err != nil {
			r.logger.Warn("failed to create LLM client", "name", name, "type", provCfg.Type, "error", err)
			continue
		}
		r.llmClients[name] = client
		r.configs[name] = provCfg
	}
}

// createLLMClient creates an LLM client based on provider type, wrapped in a
// rate limiter when one is configured.
func createLLMClient(cfg LLMProviderConfig) (LLMClient, error) {
	var client LLMClient
	switch cfg.Type {
	case TypeMock:
		client = NewMockClient()
	case TypeOpenRouter:
		client = NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxRetries,
		})
	case TypeOpenAI:
		client = NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxRetries,
		})
	case TypeAnthropic:
		client = NewAnthropicClient(AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxRetries:   cfg.MaxRetries,
		})
	case TypeGemini:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		gc, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		client = gc
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}

	if cfg.RateLimit > 0 {
		return NewRateLimitedClient(client, cfg.RateLimit), nil
	}
	return client, nil
}
