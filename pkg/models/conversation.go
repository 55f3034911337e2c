package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation status values
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// ConversationMetrics aggregates usage across messages
type ConversationMetrics struct {
	TotalTokensUsed       int     `json:"total_tokens_used"`
	TotalCostUSD          float64 `json:"total_cost_usd"`
	AverageResponseTimeMs int     `json:"average_response_time_ms"`
	MessageCount          int     `json:"message_count"`
	ModelUsed             string  `json:"model_used"`
	PromptVersion         string  `json:"prompt_version"`
}

// Conversation is a persisted thread of messages with rolling aggregates.
// Messages is only populated in memory and is never stored with the row.
type Conversation struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Title        string                 `json:"title"`
	Status       string                 `json:"status"`
	TotalCost    float64                `json:"total_cost"`
	MessageCount int                    `json:"message_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Messages     []Message              `json:"-"`
}

// NewConversation creates an active conversation for a user
func NewConversation(userID, title string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message and bumps UpdatedAt
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
}

// LatestMessage returns the most recent message, or nil
func (c *Conversation) LatestMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Metrics aggregates the metadata of in-memory messages. It returns nil when no
// message carries metadata.
func (c *Conversation) Metrics() *ConversationMetrics {
	var withMetrics []*MessageMetrics
	for i := range c.Messages {
		if c.Messages[i].Metadata != nil {
			withMetrics = append(withMetrics, c.Messages[i].Metadata)
		}
	}
	if len(withMetrics) == 0 {
		return nil
	}

	metrics := &ConversationMetrics{MessageCount: len(c.Messages)}
	responseTotal, responseCount := 0, 0
	for _, m := range withMetrics {
		metrics.TotalTokensUsed += m.TokensUsed
		metrics.TotalCostUSD += m.CostUSD
		// Zero response times come from cache hits and are not averaged
		if m.ResponseTimeMs > 0 {
			responseTotal += m.ResponseTimeMs
			responseCount++
		}
	}
	if responseCount > 0 {
		metrics.AverageResponseTimeMs = responseTotal / responseCount
	}

	latest := withMetrics[len(withMetrics)-1]
	metrics.ModelUsed = latest.ModelUsed
	metrics.PromptVersion = latest.PromptVersion

	return metrics
}

// IsArchived reports whether the conversation has been archived
func (c *Conversation) IsArchived() bool {
	return c.Status == StatusArchived
}
