package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/walletrisk/internal/credit"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/risk"
	"github.com/mbd888/walletrisk/internal/validation"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// requireAddress reads and checks the address argument.
func requireAddress(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	addr := strings.TrimSpace(req.GetString("address", ""))
	if addr == "" {
		return "", mcp.NewToolResultError("address is required")
	}
	if !validation.IsAddress(addr) {
		return "", mcp.NewToolResultError(fmt.Sprintf("%q is not a wallet address (0x + 40 hex chars)", addr))
	}
	return strings.ToLower(addr), nil
}

// HandleScoreWallet returns a wallet's credit score.
func (h *Handlers) HandleScoreWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, bad := requireAddress(req)
	if bad != nil {
		return bad, nil
	}

	var result credit.ScoreResult
	if req.GetBool("fresh", false) {
		raw, err := h.client.Evaluate(ctx, addr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to score wallet: %v", err)), nil
		}
		var resp struct {
			Evaluation struct {
				Score credit.ScoreResult `json:"score"`
			} `json:"evaluation"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
		}
		result = resp.Evaluation.Score
	} else {
		raw, err := h.client.Score(ctx, addr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to score wallet: %v", err)), nil
		}
		var resp struct {
			Score credit.ScoreResult `json:"score"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
		}
		result = resp.Score
	}

	return mcp.NewToolResultText(formatScore(addr, result)), nil
}

// HandleAssessFraud returns a fresh fraud assessment.
func (h *Handlers) HandleAssessFraud(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, bad := requireAddress(req)
	if bad != nil {
		return bad, nil
	}

	raw, err := h.client.Fraud(ctx, addr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to assess wallet: %v", err)), nil
	}
	var resp struct {
		Assessment risk.FraudAssessment `json:"assessment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAssessment(resp.Assessment)), nil
}

// HandleWalletFeatures returns the extracted feature vector.
func (h *Handlers) HandleWalletFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, bad := requireAddress(req)
	if bad != nil {
		return bad, nil
	}

	raw, err := h.client.Features(ctx, addr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load features: %v", err)), nil
	}
	var report struct {
		Address      string          `json:"address"`
		Features     features.Vector `json:"features"`
		Transactions int             `json:"transactions"`
		Transfers    int             `json:"transfers"`
		Rejected     int             `json:"rejectedRecords"`
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse features: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Features for %s (%d transactions, %d transfers", report.Address, report.Transactions, report.Transfers)
	if report.Rejected > 0 {
		fmt.Fprintf(&sb, ", %d malformed records skipped", report.Rejected)
	}
	sb.WriteString("):\n")
	v := report.Features
	fmt.Fprintf(&sb, "  Activity:   %d txs, %.2f/day, failure rate %.0f%%\n", v.TxCount, v.TxFrequencyDaily, v.FailureRate*100)
	fmt.Fprintf(&sb, "  Age:        %.0f days, %d active, longest gap %.0f days\n", v.AccountAgeDays, v.ActiveDays, v.MaxInactivityDays)
	fmt.Fprintf(&sb, "  Volume:     %.4f total, %.4f average, %.4f max\n", v.TotalVolume, v.AvgTxValue, v.MaxTxValue)
	fmt.Fprintf(&sb, "  Tokens:     %d unique, stablecoin ratio %.2f\n", v.UniqueTokens, v.StablecoinRatio)
	fmt.Fprintf(&sb, "  DeFi:       %d DEX, %d liquidity, %d yield, %d protocols\n",
		v.DEXInteractions, v.LiquidityInteractions, v.YieldInteractions, v.UniqueProtocols)
	fmt.Fprintf(&sb, "  Network:    %d counterparties, clustering %.2f, reciprocity %.2f\n",
		v.UniqueCounterparties, v.AddressClusteringScore, v.Reciprocity)

	return mcp.NewToolResultText(sb.String()), nil
}

// HandleFlaggedWallets lists recently flagged wallets.
func (h *Handlers) HandleFlaggedWallets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.FlaggedWallets(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list flagged wallets: %v", err)), nil
	}
	var resp struct {
		Assessments []risk.FraudAssessment `json:"assessments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse flagged wallets: %v", err)), nil
	}
	if len(resp.Assessments) == 0 {
		return mcp.NewToolResultText("No wallets are flagged for review."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d flagged wallet(s):\n", len(resp.Assessments))
	for i, a := range resp.Assessments {
		fmt.Fprintf(&sb, "%d. %s  risk %.0f (%s)  %s\n", i+1, a.Address, a.FraudRisk, a.RiskLevel, strings.Join(a.Indicators, ", "))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func formatScore(addr string, r credit.ScoreResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Credit score for %s: %d (%s risk)\n", addr, r.Score, credit.BandName(r.RiskBand))
	fmt.Fprintf(&sb, "  Base score: %d\n", r.BaseScore)
	if r.StakingBoost > 0 {
		fmt.Fprintf(&sb, "  Staking boost: +%d (tier %d)\n", r.StakingBoost, r.StakingTier)
	}
	if r.OraclePenalty > 0 {
		fmt.Fprintf(&sb, "  Market volatility penalty: -%d\n", r.OraclePenalty)
	}
	if r.Explanation != "" {
		fmt.Fprintf(&sb, "  Why: %s\n", r.Explanation)
	}
	if r.PolicyVersion != "" {
		fmt.Fprintf(&sb, "  Policy: %s\n", r.PolicyVersion)
	}
	return sb.String()
}

func formatAssessment(a risk.FraudAssessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fraud risk for %s: %.0f/100 (%s)\n", a.Address, a.FraudRisk, a.RiskLevel)
	fmt.Fprintf(&sb, "  Sybil: %.2f | Patterns: %.2f | Anomaly: %.2f\n", a.SybilScore, a.PatternScore, a.AnomalyScore)
	if len(a.Indicators) > 0 {
		fmt.Fprintf(&sb, "  Indicators: %s\n", strings.Join(a.Indicators, ", "))
	}
	if a.Flagged {
		sb.WriteString("  FLAGGED for manual review\n")
	}
	for _, f := range a.Fallbacks {
		fmt.Fprintf(&sb, "  Note: %s\n", f)
	}
	return sb.String()
}
