package agent

import (
	"context"
	"fmt"
	"sync"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// Roles accepted in LLMRequest.Messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn sent to the provider
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model          string
	SystemPrompt   string
	Messages       []ChatMessage
	Temperature    float64
	MaxTokens      int
	ThinkingBudget int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	ID      string
	Content string
	Usage   TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
}

// Total returns input plus output tokens
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ProviderFactory creates LLM providers from API keys and memoizes them by name
type ProviderFactory struct {
	keys map[string]string

	mu        sync.Mutex
	providers map[string]LLMProvider
}

// NewProviderFactory creates a factory over provider name → API key
func NewProviderFactory(keys map[string]string) *ProviderFactory {
	return &ProviderFactory{
		keys:      keys,
		providers: make(map[string]LLMProvider),
	}
}

// Register installs a ready-made provider under name, replacing any memoized one
func (f *ProviderFactory) Register(name string, p LLMProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = p
}

// NewProvider returns the provider for name, creating it on first use
func (f *ProviderFactory) NewProvider(name string) (LLMProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[name]; ok {
		return p, nil
	}

	key := f.keys[name]

	var (
		p   LLMProvider
		err error
	)
	switch name {
	case "anthropic":
		if key == "" {
			return nil, fmt.Errorf("missing API key for provider %s (set ANTHROPIC_API_KEY)", name)
		}
		p = NewAnthropicProvider(key)
	case "openai":
		if key == "" {
			return nil, fmt.Errorf("missing API key for provider %s (set OPENAI_API_KEY)", name)
		}
		p = NewOpenAIProvider(key)
	case "gemini":
		if key == "" {
			return nil, fmt.Errorf("missing API key for provider %s (set GEMINI_API_KEY)", name)
		}
		p, err = NewGeminiProvider(context.Background(), key)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}

	f.providers[name] = p
	return p, nil
}
