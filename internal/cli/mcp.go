package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/alexdong/quinn/pkg/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve Quinn as an MCP server over stdio",
	Long: `Serve Quinn over the Model Context Protocol on stdin/stdout.
Exposes the quinn_ask and quinn_conversations tools to MCP clients.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	mcptools.Version = version
	s := mcptools.NewServer(a.manager, a.cfg.Models.Default)

	a.log.Info().Msg("Serving MCP over stdio")
	return server.ServeStdio(s)
}
