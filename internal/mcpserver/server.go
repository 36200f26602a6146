package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all wallet risk tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("walletrisk", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolScoreWallet, h.HandleScoreWallet)
	s.AddTool(ToolAssessFraud, h.HandleAssessFraud)
	s.AddTool(ToolWalletFeatures, h.HandleWalletFeatures)
	s.AddTool(ToolFlaggedWallets, h.HandleFlaggedWallets)

	return s
}
