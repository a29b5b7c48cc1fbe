package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Generator produces a completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds LLM provider configuration
type Config struct {
	// Provider selects the backend: "anthropic" or "openai"
	Provider string

	// Model is the provider's model identifier
	Model string

	// APIKey authenticates with the provider
	APIKey string

	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	// Ignored by the anthropic provider.
	BaseURL string

	// MaxTokens caps the completion length. Default: 4096
	MaxTokens int

	// RequestsPerSecond throttles outbound calls. Default: 1
	RequestsPerSecond float64

	// Burst is the rate limiter's burst allowance. Default: 1
	Burst int
}

// DefaultConfig returns the default generator configuration
func DefaultConfig() Config {
	return Config{
		Provider:          "openai",
		Model:             "gpt-4o",
		MaxTokens:         4096,
		RequestsPerSecond: 1,
		Burst:             1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive (got %d)", c.MaxTokens)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive (got %.2f)", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive (got %d)", c.Burst)
	}
	return nil
}

// NewGenerator creates a generator for the configured provider
func NewGenerator(cfg Config) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicGenerator(cfg), nil
	case "openai":
		return newOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// newLimiter builds the shared throttle for one generator
func newLimiter(cfg Config) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
}
