package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageMetrics holds per-response usage data
type MessageMetrics struct {
	TokensUsed     int     `json:"tokens_used"`
	CostUSD        float64 `json:"cost_usd"`
	ResponseTimeMs int     `json:"response_time_ms"`
	ModelUsed      string  `json:"model_used"`
	PromptVersion  string  `json:"prompt_version"`
}

// Validate checks metric values
func (m MessageMetrics) Validate() error {
	if m.TokensUsed < 0 {
		return fmt.Errorf("tokens_used must be non-negative")
	}
	if m.CostUSD < 0 {
		return fmt.Errorf("cost_usd must be non-negative")
	}
	if m.ResponseTimeMs < 0 {
		return fmt.Errorf("response_time_ms must be non-negative")
	}
	if m.PromptVersion != "" {
		if err := ValidatePromptVersion(m.PromptVersion); err != nil {
			return err
		}
	}
	return nil
}

// Message is one user/assistant exchange within a conversation
type Message struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"conversation_id"`
	UserContent      string          `json:"user_content"`
	AssistantContent string          `json:"assistant_content"`
	SystemPrompt     string          `json:"system_prompt"`
	CreatedAt        time.Time       `json:"created_at"`
	LastUpdatedAt    time.Time       `json:"last_updated_at"`
	Metadata         *MessageMetrics `json:"metadata,omitempty"`
}

// NewMessage creates a message for the given conversation
func NewMessage(conversationID, userContent string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserContent:    userContent,
		CreatedAt:      now,
		LastUpdatedAt:  now,
	}
}

// Validate checks required message fields
func (m *Message) Validate() error {
	if strings.TrimSpace(m.UserContent) == "" {
		return fmt.Errorf("user content cannot be empty")
	}
	if m.Metadata != nil {
		return m.Metadata.Validate()
	}
	return nil
}
