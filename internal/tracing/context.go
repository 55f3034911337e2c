package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SpanIDKey is the context key for the current span ID
	SpanIDKey ContextKey = "span_id"
	// ConversationIDKey is the context key for conversation ID
	ConversationIDKey ContextKey = "conversation_id"
	// MessageIDKey is the context key for message ID
	MessageIDKey ContextKey = "message_id"
)

const hexAlphabet = "0123456789abcdef"

// TraceContext holds tracing information
type TraceContext struct {
	TraceID        string
	SpanID         string
	ConversationID string
	MessageID      string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewSpanID generates a 16 character hex span ID
func NewSpanID() string {
	id, err := gonanoid.Generate(hexAlphabet, 16)
	if err != nil {
		// Generate only fails on an invalid alphabet or size
		return uuid.New().String()[:16]
	}
	return id
}

// EmailTraceID builds the trace ID for an email thread
func EmailTraceID(mailboxHash, messageID string) string {
	return fmt.Sprintf("%s:%s", mailboxHash, messageID)
}

// DBSpanID builds the span ID for a database operation on an entity
func DBSpanID(entity, id string) string {
	return fmt.Sprintf("%s:%s", entity, id)
}

// LLMSpanID builds the span ID for an LLM response
func LLMSpanID(model, responseID string) string {
	if responseID == "" {
		responseID = NewSpanID()
	}
	return fmt.Sprintf("%s:%s", model, responseID)
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSpanID adds a span ID to the context
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// WithConversationID adds a conversation ID to the context
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

// WithMessageID adds a message ID to the context
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetSpanID retrieves the span ID from the context
func GetSpanID(ctx context.Context) string {
	return stringValue(ctx, SpanIDKey)
}

// GetConversationID retrieves the conversation ID from the context
func GetConversationID(ctx context.Context) string {
	return stringValue(ctx, ConversationIDKey)
}

// GetMessageID retrieves the message ID from the context
func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		SpanID:         GetSpanID(ctx),
		ConversationID: GetConversationID(ctx),
		MessageID:      GetMessageID(ctx),
	}
}

// NewRequestContext returns ctx with a fresh trace ID unless one is already set
func NewRequestContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, NewTraceID())
}

// NewEmailContext tags ctx with the trace of an inbound email thread
func NewEmailContext(ctx context.Context, mailboxHash, messageID string) context.Context {
	ctx = WithTraceID(ctx, EmailTraceID(mailboxHash, messageID))
	ctx = WithMessageID(ctx, messageID)
	if mailboxHash != "" {
		ctx = WithConversationID(ctx, mailboxHash)
	}
	return ctx
}
