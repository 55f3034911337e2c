package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var promptVersionPattern = regexp.MustCompile(`^\d{6}-\d{6}$`)

// ValidatePromptVersion checks a YYMMDD-HHMMSS version, optionally prefixed with "v"
func ValidatePromptVersion(version string) error {
	v := strings.TrimPrefix(version, "v")
	if !promptVersionPattern.MatchString(v) {
		return fmt.Errorf("prompt version must be in YYMMDD-HHMMSS format, got %q", version)
	}

	field := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	month, day := field(v[2:4]), field(v[4:6])
	hour, minute, second := field(v[7:9]), field(v[9:11]), field(v[11:13])

	if month < 1 || month > 12 {
		return fmt.Errorf("invalid month in prompt version %q", version)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("invalid day in prompt version %q", version)
	}
	if hour > 23 {
		return fmt.Errorf("invalid hour in prompt version %q", version)
	}
	if minute > 59 {
		return fmt.Errorf("invalid minute in prompt version %q", version)
	}
	if second > 59 {
		return fmt.Errorf("invalid second in prompt version %q", version)
	}
	return nil
}

// PromptContext is the input assembled for a response generation
type PromptContext struct {
	ID                  string    `json:"id"`
	UserInput           string    `json:"user_input"`
	ConversationHistory []Message `json:"conversation_history"`
	PromptVersion       string    `json:"prompt_version"`
	SystemPrompt        string    `json:"system_prompt"`
}

// NewPromptContext creates a prompt context with a generated id
func NewPromptContext(userInput, systemPrompt, version string, history []Message) *PromptContext {
	return &PromptContext{
		ID:                  uuid.New().String(),
		UserInput:           userInput,
		ConversationHistory: history,
		PromptVersion:       version,
		SystemPrompt:        systemPrompt,
	}
}

// Validate checks required fields and the version format
func (p *PromptContext) Validate() error {
	if strings.TrimSpace(p.UserInput) == "" {
		return fmt.Errorf("user_input cannot be empty")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("system_prompt cannot be empty")
	}
	if p.PromptVersion != "" {
		return ValidatePromptVersion(p.PromptVersion)
	}
	return nil
}
