package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID == "" && tc.SpanID == "" && tc.ConversationID == "" && tc.MessageID == "" {
		return logger
	}

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.SpanID != "" {
		lc = lc.Str("span_id", tc.SpanID)
	}
	if tc.ConversationID != "" {
		lc = lc.Str("conversation_id", tc.ConversationID)
	}
	if tc.MessageID != "" {
		lc = lc.Str("message_id", tc.MessageID)
	}
	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// Detach returns a context that keeps every value of ctx, tracing ids and
// the active span included, but is never cancelled. The email processor uses
// it so a reply is finished and recorded after the webhook times out.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
