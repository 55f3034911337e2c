package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alexdong/quinn/pkg/conversation"
)

const defaultListLimit = 20

// ConversationsTool handles quinn_conversations
type ConversationsTool struct {
	manager *conversation.Manager
}

// NewConversationsTool creates a ConversationsTool
func NewConversationsTool(manager *conversation.Manager) *ConversationsTool {
	return &ConversationsTool{manager: manager}
}

// Definition returns the MCP tool definition for quinn_conversations
func (t *ConversationsTool) Definition() mcp.Tool {
	return mcp.NewTool("quinn_conversations",
		mcp.WithDescription("List Quinn conversations started over MCP, most recently updated first."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max conversations (default: %d)", defaultListLimit)),
		),
	)
}

// Handle processes the quinn_conversations tool call
func (t *ConversationsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := defaultListLimit
	if v, ok := req.GetArguments()["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	convs, err := t.manager.ListConversations(ctx, conversation.MCPUserID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list conversations: %v", err)), nil
	}
	if len(convs) == 0 {
		return mcp.NewToolResultText("No conversations yet."), nil
	}
	if len(convs) > limit {
		convs = convs[:limit]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Conversations (%d)\n\n", len(convs)))
	for i, c := range convs {
		sb.WriteString(fmt.Sprintf("%d. **%s** `%s`: %d messages, $%.6f, %s, updated %s\n",
			i+1, c.Title, c.ID, c.MessageCount, c.TotalCost, c.Status, c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
