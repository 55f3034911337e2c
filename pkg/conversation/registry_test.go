package conversation

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelConfig(t *testing.T) {
	tests := []struct {
		name          string
		provider      string
		providerModel string
		thinking      int
	}{
		{"gemini-2.5-flash", "gemini", "gemini-2.5-flash", 0},
		{"gemini-2.5-flash-thinking", "gemini", "gemini-2.5-flash", 8192},
		{"claude-sonnet-4", "anthropic", "claude-sonnet-4-20250514", 0},
		{"gpt-4o-mini", "openai", "gpt-4o-mini", 0},
		{"gpt-4.1", "openai", "gpt-4.1", 0},
		{"gpt-4.1-mini", "openai", "gpt-4.1-mini", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ModelConfig(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, cfg.Model)
			assert.Equal(t, tt.provider, cfg.Provider)
			assert.Equal(t, tt.providerModel, cfg.APIModel())
			assert.Equal(t, tt.thinking, cfg.ThinkingBudget)
			assert.Greater(t, cfg.InputCostPerToken, 0.0)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestModelConfig_Unsupported(t *testing.T) {
	_, err := ModelConfig("gpt-5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedModel))
	assert.Equal(t,
		"Unsupported model 'gpt-5'. Available models: gemini-2.5-flash, gemini-2.5-flash-thinking, claude-sonnet-4, gpt-4o-mini, gpt-4.1, gpt-4.1-mini",
		err.Error())
}

func TestAvailableModels(t *testing.T) {
	models := AvailableModels()
	assert.Len(t, models, 6)
	assert.Equal(t, "gemini-2.5-flash", models[0])
	assert.Contains(t, models, DefaultModel)
}

func TestTitleTruncation(t *testing.T) {
	assert.Equal(t, "short", Title("short"))
	exact := "01234567890123456789012345678901234567890123456789"
	assert.Equal(t, exact, Title(exact))
	assert.Equal(t, exact+"...", Title(exact+"x"))
}
