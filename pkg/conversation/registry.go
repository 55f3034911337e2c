package conversation

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/models"
)

// ErrUnsupportedModel is returned for model names missing from the registry
var ErrUnsupportedModel = errors.New("unsupported model")

// DefaultModel is used when a caller names no model
const DefaultModel = "claude-sonnet-4"

type modelEntry struct {
	name           string
	provider       string
	providerModel  string
	thinkingBudget int
}

// registry is ordered as shown to users
var registry = []modelEntry{
	{"gemini-2.5-flash", "gemini", "gemini-2.5-flash", 0},
	{"gemini-2.5-flash-thinking", "gemini", "gemini-2.5-flash", 8192},
	{"claude-sonnet-4", "anthropic", "claude-sonnet-4-20250514", 0},
	{"gpt-4o-mini", "openai", "gpt-4o-mini", 0},
	{"gpt-4.1", "openai", "gpt-4.1", 0},
	{"gpt-4.1-mini", "openai", "gpt-4.1-mini", 0},
}

// AvailableModels lists the model names accepted by ModelConfig
func AvailableModels() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// ModelConfig returns the agent configuration for a registered model
func ModelConfig(name string) (models.AgentConfig, error) {
	for _, e := range registry {
		if e.name != name {
			continue
		}
		cfg := models.DefaultAgentConfig()
		cfg.Model = e.name
		cfg.Provider = e.provider
		cfg.ProviderModel = e.providerModel
		cfg.ThinkingBudget = e.thinkingBudget
		if cost, err := agent.GetModelCostInfo(e.name); err == nil {
			cfg.InputCostPerToken = cost.InputCostPerToken
			cfg.OutputCostPerToken = cost.OutputCostPerToken
		}
		return cfg, nil
	}
	return models.AgentConfig{}, errors.Mark(
		errors.Newf("Unsupported model '%s'. Available models: %s", name, strings.Join(AvailableModels(), ", ")),
		ErrUnsupportedModel,
	)
}
