package mcptools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
	"github.com/alexdong/quinn/pkg/store"
)

type cannedResponder struct {
	requests []agent.Request
}

func (c *cannedResponder) GenerateResponse(ctx context.Context, req agent.Request) (*models.Message, error) {
	c.requests = append(c.requests, req)
	msg := models.NewMessage(req.ConversationID, req.UserContent)
	msg.AssistantContent = "What would happen if you did nothing?"
	msg.Metadata = &models.MessageMetrics{TokensUsed: 42, CostUSD: 0.0005, ModelUsed: req.Config.Model}
	return msg, nil
}

func newTestManager(t *testing.T) (*conversation.Manager, *cannedResponder) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "quinn.db"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	responder := &cannedResponder{}
	mgr := conversation.NewManager(conversation.Options{Store: s, Responder: responder, Logger: zerolog.Nop()})
	require.NoError(t, mgr.Setup(context.Background()))
	return mgr, responder
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAskTool_Definition(t *testing.T) {
	mgr, _ := newTestManager(t)
	def := NewAskTool(mgr, "").Definition()

	assert.Equal(t, "quinn_ask", def.Name)
	assert.Contains(t, def.InputSchema.Properties, "input")
	assert.Contains(t, def.InputSchema.Properties, "conversation_id")
	assert.Contains(t, def.InputSchema.Properties, "model")
	assert.Equal(t, []string{"input"}, def.InputSchema.Required)
}

func TestAskTool_NewThenContinue(t *testing.T) {
	mgr, responder := newTestManager(t)
	tool := NewAskTool(mgr, "gpt-4o-mini")
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{
		"input": "Should I rewrite this module from scratch?",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "What would happen if you did nothing?")
	assert.Contains(t, resultText(res), "model: gpt-4o-mini")

	convs, err := mgr.ListConversations(ctx, conversation.MCPUserID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Contains(t, resultText(res), "conversation_id: "+convs[0].ID)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{
		"input":           "The tests are the main problem",
		"conversation_id": convs[0].ID,
		"model":           "claude-sonnet-4",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	conv, err := mgr.Conversation(ctx, convs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	require.Len(t, responder.requests, 2)
	assert.Equal(t, "claude-sonnet-4", responder.requests[1].Config.Model)
}

func TestAskTool_Errors(t *testing.T) {
	mgr, responder := newTestManager(t)
	tool := NewAskTool(mgr, "")

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing input", map[string]interface{}{}, "too short"},
		{"short input", map[string]interface{}{"input": "help"}, "too short"},
		{"unknown model", map[string]interface{}{"input": "a long enough question", "model": "gpt-2"}, "Unsupported model"},
		{"unknown conversation", map[string]interface{}{"input": "a long enough question", "conversation_id": "nope"}, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(res), tt.want)
		})
	}
	assert.Empty(t, responder.requests)
}

func TestAskTool_OtherUsersConversation(t *testing.T) {
	mgr, responder := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateNew(ctx, conversation.CLIUserID, "a private question from the terminal", "")
	require.NoError(t, err)

	res, err := NewAskTool(mgr, "").Handle(ctx, makeReq(map[string]interface{}{
		"input":           "a long enough follow up",
		"conversation_id": created.Conversation.ID,
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not found")
	assert.NotContains(t, resultText(res), "What would happen")

	assert.Len(t, responder.requests, 1)
	msgs, err := mgr.Messages(ctx, created.Conversation.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConversationsTool(t *testing.T) {
	mgr, _ := newTestManager(t)
	tool := NewConversationsTool(mgr)
	ctx := context.Background()

	assert.Equal(t, "quinn_conversations", tool.Definition().Name)

	res, err := tool.Handle(ctx, makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, "No conversations yet.", resultText(res))

	for _, input := range []string{"first question here", "second question here", "third question here"} {
		_, err := mgr.CreateNew(ctx, conversation.MCPUserID, input, "")
		require.NoError(t, err)
	}
	// other users' conversations are not listed
	_, err = mgr.CreateNew(ctx, conversation.CLIUserID, "cli only question", "")
	require.NoError(t, err)

	res, err = tool.Handle(ctx, makeReq(nil))
	require.NoError(t, err)
	text := resultText(res)
	assert.Contains(t, text, "## Conversations (3)")
	assert.NotContains(t, text, "cli only question")

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"limit": float64(2)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(res), "## Conversations (2)")
}

func TestNewServer(t *testing.T) {
	mgr, _ := newTestManager(t)
	s := NewServer(mgr, "")
	require.NotNil(t, s)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"quinn_ask"`)
	assert.Contains(t, string(out), `"quinn_conversations"`)
}
