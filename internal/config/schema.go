package config

import "time"

// Config holds pathoprompt configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
}

// LLMProviderCfg configures a generation backend.
type LLMProviderCfg struct {
	Type       string `mapstructure:"type" yaml:"type"`         // "mock", "openrouter", "openai", "anthropic", "gemini"
	Model      string `mapstructure:"model" yaml:"model"`       // Model name
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"` // Optional endpoint override (supports ${ENV_VAR} syntax)
	RateLimit  int    `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg holds run-wide settings.
type DefaultsCfg struct {
	LLMProvider        string `mapstructure:"llm_provider" yaml:"llm_provider"`
	MaxTokens          int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds" yaml:"call_timeout_seconds"`
	ConsensusSamples   int    `mapstructure:"consensus_samples" yaml:"consensus_samples"`
	ConsensusParallel  int    `mapstructure:"consensus_parallel" yaml:"consensus_parallel"`
	MaxParallel        int    `mapstructure:"max_parallel" yaml:"max_parallel"` // Techniques in flight during compare
	OutputDir          string `mapstructure:"output_dir" yaml:"output_dir"`     // Empty means {home}/runs
}

// CallTimeout returns the per-call timeout.
func (d DefaultsCfg) CallTimeout() time.Duration {
	return time.Duration(d.CallTimeoutSeconds) * time.Second
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"mock": {
				Type:    "mock",
				Enabled: true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-4",
				APIKey:  "${LLM_API_KEY}",
				BaseURL: "${LLM_BASE_URL}",
				Enabled: true,
			},
			"openrouter": {
				Type:      "openrouter",
				Model:     "openai/gpt-4o-mini",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 150,
				Enabled:   true,
			},
			"anthropic": {
				Type:    "anthropic",
				Model:   "claude-sonnet-4-5",
				APIKey:  "${ANTHROPIC_API_KEY}",
				Enabled: true,
			},
			"gemini": {
				Type:    "gemini",
				Model:   "gemini-2.5-flash",
				APIKey:  "${GEMINI_API_KEY}",
				Enabled: true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider:        "openai",
			MaxTokens:          1000,
			CallTimeoutSeconds: 120,
			ConsensusSamples:   3,
			ConsensusParallel:  3,
			MaxParallel:        7,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
