package agent

import (
	"sort"
	"strings"
)

// ModelCost is the USD price per token for a model
type ModelCost struct {
	InputCostPerToken       float64 `json:"input_cost_per_token"`
	OutputCostPerToken      float64 `json:"output_cost_per_token"`
	CachedInputCostPerToken float64 `json:"cached_input_cost_per_token"`
}

const perMillion = 1.0 / 1_000_000

// pricing in USD per token. Cached input is never more than regular input.
var pricing = map[string]ModelCost{
	"gemini-2.5-flash":           {0.30 * perMillion, 2.50 * perMillion, 0.075 * perMillion},
	"gemini-2.5-flash-exp":       {0, 0, 0},
	"gemini-2.5-flash-thinking":  {0.30 * perMillion, 2.50 * perMillion, 0.075 * perMillion},
	"gemini-2.0-flash":           {0.10 * perMillion, 0.40 * perMillion, 0.025 * perMillion},
	"claude-sonnet-4":            {3.00 * perMillion, 15.00 * perMillion, 0.30 * perMillion},
	"claude-sonnet-4-20250514":   {3.00 * perMillion, 15.00 * perMillion, 0.30 * perMillion},
	"claude-3-5-sonnet-20241022": {3.00 * perMillion, 15.00 * perMillion, 0.30 * perMillion},
	"gpt-4o":                     {2.50 * perMillion, 10.00 * perMillion, 1.25 * perMillion},
	"gpt-4o-mini":                {0.15 * perMillion, 0.60 * perMillion, 0.075 * perMillion},
	"gpt-4.1":                    {2.00 * perMillion, 8.00 * perMillion, 0.50 * perMillion},
	"gpt-4.1-mini":               {0.40 * perMillion, 1.60 * perMillion, 0.10 * perMillion},
}

// Token kinds accepted by GetCostPerToken
const (
	TokenKindInput       = "input"
	TokenKindOutput      = "output"
	TokenKindCachedInput = "cached_input"
)

// CalculateCost returns the USD cost of a call
func CalculateCost(model string, inputTokens, outputTokens, cachedInputTokens int) (float64, error) {
	if strings.TrimSpace(model) == "" {
		return 0, invalidInput("Model name cannot be empty")
	}
	if inputTokens < 0 {
		return 0, invalidInput("Input tokens must be non-negative")
	}
	if outputTokens < 0 {
		return 0, invalidInput("Output tokens must be non-negative")
	}
	if cachedInputTokens < 0 {
		return 0, invalidInput("Cached input tokens must be non-negative")
	}

	info, err := GetModelCostInfo(model)
	if err != nil {
		return 0, err
	}

	return float64(inputTokens)*info.InputCostPerToken +
		float64(cachedInputTokens)*info.CachedInputCostPerToken +
		float64(outputTokens)*info.OutputCostPerToken, nil
}

// GetModelCostInfo returns the pricing entry for model
func GetModelCostInfo(model string) (ModelCost, error) {
	info, ok := pricing[model]
	if !ok {
		return ModelCost{}, invalidInput("Model '%s' not found in pricing data", model)
	}
	return info, nil
}

// GetCostPerToken returns one rate for model: input, output or cached_input
func GetCostPerToken(model, kind string) (float64, error) {
	info, err := GetModelCostInfo(model)
	if err != nil {
		return 0, err
	}
	switch kind {
	case TokenKindInput:
		return info.InputCostPerToken, nil
	case TokenKindOutput:
		return info.OutputCostPerToken, nil
	case TokenKindCachedInput:
		return info.CachedInputCostPerToken, nil
	}
	return 0, invalidInput("Invalid token type '%s'. Must be 'input', 'output' or 'cached_input'", kind)
}

// EstimateCompletionCost estimates a call before it is made, taking four
// characters per input token and maxTokens output tokens.
func EstimateCompletionCost(model, prompt string, maxTokens int) (float64, error) {
	if prompt == "" {
		return 0, invalidInput("Prompt cannot be empty")
	}
	if maxTokens <= 0 {
		return 0, invalidInput("Max tokens must be positive")
	}
	return CalculateCost(model, len(prompt)/4, maxTokens, 0)
}

// SupportedModels lists every model with pricing, sorted
func SupportedModels() []string {
	models := make([]string, 0, len(pricing))
	for m := range pricing {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
