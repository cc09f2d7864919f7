package intel

import (
	"fmt"
	"math"
	"strings"

	"github.com/autonome-labs/autonome/internal/model"
)

// hodlerReferencePrice is the fixed ETH reference price used only by the
// category heuristic, so categorization stays deterministic when the live
// price lookup failed.
const hodlerReferencePrice = 2650.0

// RiskScore rates a wallet 0 (safe) to 100 (risky) from its raw balances and
// the current ETH price. Deterministic; safe for any non-negative inputs.
func RiskScore(eth, usdc, ethPrice float64) int {
	score := 50.0
	totalUsd := eth*ethPrice + usdc

	// Portfolio size.
	if totalUsd < 10 {
		score += 20
	}
	if totalUsd < 1 {
		score += 15
	}
	if totalUsd > 10000 {
		score -= 10
	}
	if totalUsd > 100000 {
		score -= 15
	}

	// Concentration in the volatile asset.
	if totalUsd > 0 {
		ethPct := (eth * ethPrice) / totalUsd
		if ethPct > 0.95 {
			score += 20
		}
		if ethPct > 0.8 {
			score += 10
		}
		if ethPct < 0.2 {
			score -= 10
		}
	}

	// No diversification at all.
	if eth == 0 || usdc == 0 {
		score += 5
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// Categorize assigns the behavioral wallet category.
func Categorize(eth, usdc, totalUsd float64) model.WalletCategory {
	switch {
	case totalUsd == 0:
		return model.CategoryNew
	case totalUsd < 1:
		return model.CategoryDormant
	case totalUsd > 100000:
		return model.CategoryWhale
	case totalUsd > 10000:
		return model.CategoryActiveTrader
	case usdc > eth*hodlerReferencePrice*2:
		return model.CategoryHodler
	default:
		return model.CategoryActiveTrader
	}
}

// AssessHealth classifies portfolio diversification from raw balances.
func AssessHealth(eth, usdc float64) model.PortfolioHealth {
	switch {
	case eth == 0 && usdc == 0:
		return model.HealthEmpty
	case eth == 0 || usdc == 0:
		return model.HealthConcentrated
	case eth+usdc < 0.01:
		return model.HealthUnderfunded
	default:
		return model.HealthDiversified
	}
}

// DetectAnomalies runs the fixed anomaly rule set. The result is never empty:
// when no rule fires it contains exactly the NoAnomalies sentinel.
func DetectAnomalies(eth, usdc, ethPrice float64) []string {
	var anomalies []string
	totalUsd := eth*ethPrice + usdc

	if eth > 100 {
		anomalies = append(anomalies, "Large ETH holding (>100 ETH)")
	}
	if usdc > 50000 {
		anomalies = append(anomalies, "Significant stablecoin reserves (>$50k)")
	}
	if eth == 0 && usdc == 0 {
		anomalies = append(anomalies, "Empty wallet — possible new or drained account")
	}
	if totalUsd > 1000000 {
		anomalies = append(anomalies, "Whale-tier portfolio (>$1M)")
	}
	if eth > 0 && usdc == 0 {
		anomalies = append(anomalies, "No stablecoin buffer — fully exposed to ETH volatility")
	}

	if len(anomalies) == 0 {
		return []string{model.NoAnomalies}
	}
	return anomalies
}

// assessActivity infers a coarse activity pattern from the funding status.
func assessActivity(needsFunding bool) string {
	if needsFunding {
		return "needs-funding"
	}
	return "normal"
}

// QuickRiskScore is the simplified heuristic sold on the cheap check
// endpoint: combined balance below 1 is high risk, above 1000 low risk.
func QuickRiskScore(eth, usdc float64) int {
	switch total := eth + usdc; {
	case total < 1:
		return 85
	case total > 1000:
		return 25
	default:
		return 50
	}
}

// promptInputs carries everything the analysis prompt template needs.
type promptInputs struct {
	Address           string
	EthBalance        float64
	UsdcBalance       float64
	EthPrice          float64
	PortfolioValueUsd string
	RiskScore         int
	WalletCategory    model.WalletCategory
	PortfolioHealth   model.PortfolioHealth
	Anomalies         []string
}

func buildAnalysisPrompt(in promptInputs) string {
	return fmt.Sprintf(`You are a blockchain intelligence analyst. Analyze this Base L2 wallet and provide:
1. A brief profile summary (2-3 sentences about who this wallet likely belongs to)
2. Key observations about their holdings and behavior
3. One actionable recommendation

Wallet data:
- Address: %s
- Network: Base L2
- ETH Balance: %.6f ETH ($%.2f)
- USDC Balance: %.2f USDC
- Total Portfolio: $%s
- ETH Price: $%.2f
- Risk Score: %d/100 (higher = riskier)
- Category: %s
- Portfolio Health: %s
- Anomalies: %s

Be concise and direct. No disclaimers. Focus on actionable intelligence.`,
		in.Address,
		in.EthBalance, in.EthBalance*in.EthPrice,
		in.UsdcBalance,
		in.PortfolioValueUsd,
		in.EthPrice,
		in.RiskScore,
		in.WalletCategory,
		in.PortfolioHealth,
		strings.Join(in.Anomalies, ", "),
	)
}

const maxRecommendationLen = 300

// extractRecommendation pulls the recommendation section out of a free-form
// chat response, falling back to the last substantive line.
func extractRecommendation(response string) string {
	lines := strings.Split(response, "\n")

	recIndex := -1
	for i, l := range lines {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "recommendation") ||
			strings.Contains(lower, "suggest") ||
			strings.Contains(lower, "action") {
			recIndex = i
			break
		}
	}

	if recIndex >= 0 && recIndex < len(lines)-1 {
		joined := strings.Join(lines[recIndex:], " ")
		if i := strings.Index(joined, ":"); i >= 0 {
			joined = joined[i+1:]
		}
		joined = strings.TrimSpace(joined)
		if len(joined) > maxRecommendationLen {
			joined = joined[:maxRecommendationLen]
		}
		return joined
	}

	var last string
	for _, l := range lines {
		if len(strings.TrimSpace(l)) > 20 {
			last = strings.TrimSpace(l)
		}
	}
	if last == "" {
		return "Review portfolio allocation"
	}
	return last
}

// parseAmount parses a decimal string, returning 0 for anything unparsable.
// Marketplace responses occasionally omit or garble numeric fields; the
// stated fallback everywhere is zero.
func parseAmount(s string) float64 {
	var v float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &v); err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
