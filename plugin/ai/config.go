package ai

import (
	"time"

	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/timeout"
)

// APISettings carries the caller's credentials and model choice for a mutation.
type APISettings struct {
	Provider string // openai, deepseek, ollama
	APIKey   string
	BaseURL  string
	Model    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	MaxTokens         int     // default: 2048
	Temperature       float32 // default: 0.7
	MaxRetries        int
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables the limiter
}

var supportedProviders = map[string]bool{
	"openai":   true,
	"deepseek": true,
	"ollama":   true,
}

// NewAPISettingsFromProfile creates settings from profile.
func NewAPISettingsFromProfile(p *profile.Profile) *APISettings {
	return &APISettings{
		Provider: p.AIProvider,
		APIKey:   p.AIAPIKey,
		BaseURL:  p.AIBaseURL,
		Model:    p.AIModel,
	}
}

// HasCredentials reports whether the settings carry an API key.
func (s *APISettings) HasCredentials() bool {
	return s != nil && s.APIKey != ""
}

// WithAPIKey returns a copy of the settings using key.
func (s *APISettings) WithAPIKey(key string) *APISettings {
	clone := *s
	clone.APIKey = key
	return &clone
}

// Validate validates the settings.
func (s *APISettings) Validate() error {
	if !s.HasCredentials() {
		return errors.New("API key is required")
	}
	if !supportedProviders[s.Provider] {
		return errors.Errorf("unsupported LLM provider: %s", s.Provider)
	}
	return nil
}

// LLMConfig derives the provider configuration with default limits.
func (s *APISettings) LLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:          s.Provider,
		Model:             s.Model,
		APIKey:            s.APIKey,
		BaseURL:           s.BaseURL,
		MaxTokens:         2048,
		Temperature:       0.7,
		MaxRetries:        timeout.MaxRetries,
		Timeout:           timeout.RequestTimeout,
		RequestsPerSecond: 2,
	}
}
