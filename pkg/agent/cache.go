package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/alexdong/quinn/pkg/models"
)

// PromptHash keys the response cache on the exact input, system prompt and model
func PromptHash(userInput, systemPrompt, model string) (string, error) {
	if userInput == "" {
		return "", invalidInput("User input cannot be empty")
	}
	if systemPrompt == "" {
		return "", invalidInput("System prompt cannot be empty")
	}
	if model == "" {
		return "", invalidInput("Model cannot be empty")
	}

	sum := sha256.Sum256([]byte(userInput + "|" + systemPrompt + "|" + model))
	return hex.EncodeToString(sum[:]), nil
}

// ResponseCache holds generated messages in memory by prompt hash
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]models.Message
}

// NewResponseCache creates an empty cache
func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[string]models.Message)}
}

// Get returns a copy of the cached message for hash
func (c *ResponseCache) Get(hash string) (*models.Message, bool, error) {
	if hash == "" {
		return nil, false, invalidInput("Prompt hash cannot be empty")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	msg, ok := c.entries[hash]
	if !ok {
		return nil, false, nil
	}
	if msg.Metadata != nil {
		meta := *msg.Metadata
		msg.Metadata = &meta
	}
	return &msg, true, nil
}

// Set stores msg under hash
func (c *ResponseCache) Set(hash string, msg *models.Message) error {
	if hash == "" {
		return invalidInput("Prompt hash cannot be empty")
	}
	if msg == nil {
		return invalidInput("Message cannot be nil")
	}
	stored := *msg
	if msg.Metadata != nil {
		meta := *msg.Metadata
		stored.Metadata = &meta
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = stored
	return nil
}

// Clear drops every entry
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.Message)
}

// Len returns the number of cached responses
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
