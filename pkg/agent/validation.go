package agent

import (
	"strings"

	"github.com/alexdong/quinn/pkg/models"
)

const (
	minUserInputLength    = 10
	minSystemPromptLength = 50
)

// ValidateUserInput requires at least 10 characters of real content
func ValidateUserInput(input string) error {
	if len(strings.TrimSpace(input)) < minUserInputLength {
		return invalidInput("Message content too short (min %d chars)", minUserInputLength)
	}
	return nil
}

// ValidateSystemPrompt checks an explicit system prompt; empty means the default
func ValidateSystemPrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed != "" && len(trimmed) < minSystemPromptLength {
		return invalidInput("System prompt too short (min %d chars)", minSystemPromptLength)
	}
	return nil
}

// ValidateConversationHistory checks each turn has content and a known role
func ValidateConversationHistory(turns []ChatMessage) error {
	for i, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			return invalidInput("Empty message content at index %d", i)
		}
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return invalidInput("Invalid role at index %d: %s", i, turn.Role)
		}
	}
	return nil
}

// HistoryTurns flattens stored exchanges into chat turns, skipping empty sides
func HistoryTurns(history []models.Message) []ChatMessage {
	turns := make([]ChatMessage, 0, len(history)*2)
	for _, msg := range history {
		if msg.UserContent != "" {
			turns = append(turns, ChatMessage{Role: RoleUser, Content: msg.UserContent})
		}
		if msg.AssistantContent != "" {
			turns = append(turns, ChatMessage{Role: RoleAssistant, Content: msg.AssistantContent})
		}
	}
	return turns
}
