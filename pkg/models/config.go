package models

import (
	"fmt"
	"strings"
)

// AgentConfig configures a single LLM response generation
type AgentConfig struct {
	Model              string  `json:"model" mapstructure:"model"`
	Provider           string  `json:"provider" mapstructure:"provider"`             // anthropic, openai, gemini
	ProviderModel      string  `json:"provider_model" mapstructure:"provider_model"` // model id sent to the provider API
	Temperature        float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens          int     `json:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds     int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries         int     `json:"max_retries" mapstructure:"max_retries"`
	RetryBackoffFactor float64 `json:"retry_backoff_factor" mapstructure:"retry_backoff_factor"`
	InputCostPerToken  float64 `json:"input_cost_per_token" mapstructure:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token" mapstructure:"output_cost_per_token"`
	ThinkingBudget     int     `json:"thinking_budget,omitempty" mapstructure:"thinking_budget"`
}

// MaxRetriesLimit bounds AgentConfig.MaxRetries
const MaxRetriesLimit = 10

// DefaultAgentConfig returns the default agent configuration
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:              "gemini-2.5-flash-exp",
		Provider:           "gemini",
		Temperature:        0.7,
		MaxTokens:          4000,
		TimeoutSeconds:     300,
		MaxRetries:         3,
		RetryBackoffFactor: 2.0,
		InputCostPerToken:  0.00000015, // $0.15 per 1M tokens
		OutputCostPerToken: 0.0000006,  // $0.60 per 1M tokens
	}
}

// APIModel returns the model id to send to the provider
func (c AgentConfig) APIModel() string {
	if c.ProviderModel != "" {
		return c.ProviderModel
	}
	return c.Model
}

// Validate checks the configuration ranges
func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("Model name cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0, got %v", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("max_retries must be between 0 and %d, got %d", MaxRetriesLimit, c.MaxRetries)
	}
	if c.RetryBackoffFactor <= 1.0 {
		return fmt.Errorf("retry_backoff_factor must be greater than 1.0, got %v", c.RetryBackoffFactor)
	}
	if c.InputCostPerToken < 0 || c.OutputCostPerToken < 0 {
		return fmt.Errorf("cost per token must be non-negative")
	}
	if c.ThinkingBudget < 0 {
		return fmt.Errorf("thinking_budget must be non-negative, got %d", c.ThinkingBudget)
	}
	return nil
}
