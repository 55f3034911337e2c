package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
)

// AskTool handles quinn_ask
type AskTool struct {
	manager      *conversation.Manager
	defaultModel string
}

// NewAskTool creates an AskTool
func NewAskTool(manager *conversation.Manager, defaultModel string) *AskTool {
	if defaultModel == "" {
		defaultModel = conversation.DefaultModel
	}
	return &AskTool{manager: manager, defaultModel: defaultModel}
}

// Definition returns the MCP tool definition for quinn_ask
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("quinn_ask",
		mcp.WithDescription(
			"Ask Quinn to help think through a problem. Quinn replies with clarifying questions "+
				"and observations rather than finished answers. Pass conversation_id to continue a thread.",
		),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("What you are working on or stuck with (at least 10 characters)"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Existing conversation to continue; omit to start a new one"),
		),
		mcp.WithString("model",
			mcp.Description("Model name: "+strings.Join(conversation.AvailableModels(), ", ")),
		),
	)
}

// Handle processes the quinn_ask tool call
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := req.GetString("input", "")
	if err := agent.ValidateUserInput(input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model := req.GetString("model", t.defaultModel)
	convID := req.GetString("conversation_id", "")

	ctx = conversation.WithChannel(ctx, "mcp")

	var (
		result *conversation.Result
		err    error
	)
	if convID == "" {
		result, err = t.manager.CreateNew(ctx, conversation.MCPUserID, input, model)
	} else {
		result, err = t.manager.Continue(ctx, convID, conversation.MCPUserID, input, model)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("quinn_ask failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(result.Message.AssistantContent)
	sb.WriteString("\n\n---\n")
	sb.WriteString(fmt.Sprintf("conversation_id: %s\n", result.Conversation.ID))
	if md := result.Message.Metadata; md != nil {
		sb.WriteString(fmt.Sprintf("model: %s, tokens: %d, cost: $%.6f\n", md.ModelUsed, md.TokensUsed, md.CostUSD))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
