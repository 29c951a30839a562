package providers

import (
	"os"
)

// TestConfig holds live provider credentials read from the environment, so
// integration tests can run against real endpoints when keys are present.
type TestConfig struct {
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GeminiAPIKey     string
}

// LoadTestConfig loads provider API keys from environment variables.
func LoadTestConfig() TestConfig {
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		openAIKey = os.Getenv("LLM_API_KEY")
	}
	return TestConfig{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenAIAPIKey:     openAIKey,
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
	}
}

// HasAnyLLM returns true if any live provider is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.OpenRouterAPIKey != "" || c.OpenAIAPIKey != "" || c.AnthropicAPIKey != "" || c.GeminiAPIKey != ""
}

// ToRegistryConfig converts test config to a RegistryConfig, including only
// providers that have keys.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{LLMProviders: make(map[string]LLMProviderConfig)}
	add := func(name, key string) {
		if key == "" {
			return
		}
		cfg.LLMProviders[name] = LLMProviderConfig{
			Type:      name,
			APIKey:    key,
			RateLimit: 60,
			Enabled:   true,
		}
	}
	add(TypeOpenRouter, c.OpenRouterAPIKey)
	add(TypeOpenAI, c.OpenAIAPIKey)
	add(TypeAnthropic, c.AnthropicAPIKey)
	add(TypeGemini, c.GeminiAPIKey)
	return cfg
}
