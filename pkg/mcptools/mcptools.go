// Package mcptools exposes Quinn over the Model Context Protocol.
//
// Each tool is a struct holding the conversation manager, with Definition()
// returning the mcp.Tool schema and Handle() serving calls. Tool failures are
// reported as error results, never as protocol errors.
package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/alexdong/quinn/pkg/conversation"
)

// Version is reported to MCP clients
var Version = "dev"

// NewServer creates an MCP server with every Quinn tool registered
func NewServer(manager *conversation.Manager, defaultModel string) *server.MCPServer {
	s := server.NewMCPServer(
		"quinn",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Quinn is a rubber-duck assistant. Use quinn_ask to think a problem through "+
			"and quinn_conversations to find earlier threads."),
	)

	ask := NewAskTool(manager, defaultModel)
	s.AddTool(ask.Definition(), ask.Handle)

	list := NewConversationsTool(manager)
	s.AddTool(list.Definition(), list.Handle)

	return s
}
