package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the wallet risk MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreWallet = mcp.NewTool("score_wallet",
	mcp.WithDescription(
		"Get the credit score (0-1000) and risk band (low, medium, high) of an Ethereum wallet. "+
			"The explanation lists which activity raised or lowered the score. "+
			"Set fresh to recompute instead of using a recent cached score."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
	mcp.WithBoolean("fresh",
		mcp.Description("Recompute the score now instead of reading the cache")),
)

var ToolAssessFraud = mcp.NewTool("assess_fraud",
	mcp.WithDescription(
		"Assess how likely an Ethereum wallet is to be a bot, sybil, mixer user or wash trader. "+
			"Returns a fraud risk from 0 to 100, the indicators that fired, "+
			"and whether the wallet is flagged for manual review."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
)

var ToolWalletFeatures = mcp.NewTool("wallet_features",
	mcp.WithDescription(
		"Show the behavioural, financial, DeFi, temporal and network features extracted "+
			"from a wallet's history. Use this to explain a score in detail."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address, 0x followed by 40 hex characters")),
)

var ToolFlaggedWallets = mcp.NewTool("flagged_wallets",
	mcp.WithDescription(
		"List the most recently flagged wallets with their fraud risk."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum wallets to return (default 20)")),
)
