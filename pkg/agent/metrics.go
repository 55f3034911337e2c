package agent

import (
	"strings"
	"time"

	"github.com/alexdong/quinn/pkg/models"
)

// TrackResponseMetrics summarizes a single response as conversation metrics
func TrackResponseMetrics(start time.Time, model, promptVersion string, inputTokens, outputTokens int, cost float64) (*models.ConversationMetrics, error) {
	if strings.TrimSpace(model) == "" {
		return nil, invalidInput("Model name cannot be empty")
	}
	if inputTokens < 0 {
		return nil, invalidInput("Input tokens must be non-negative")
	}
	if outputTokens < 0 {
		return nil, invalidInput("Output tokens must be non-negative")
	}
	if cost < 0 {
		return nil, invalidInput("Cost must be non-negative")
	}

	return &models.ConversationMetrics{
		TotalTokensUsed:       inputTokens + outputTokens,
		TotalCostUSD:          cost,
		AverageResponseTimeMs: int(time.Since(start).Milliseconds()),
		MessageCount:          1,
		ModelUsed:             model,
		PromptVersion:         promptVersion,
	}, nil
}
