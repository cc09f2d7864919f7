// Package intel builds wallet intelligence reports by composing metered
// marketplace skills with local scoring heuristics. The pipeline is
// best-effort: a failed skill degrades the report instead of aborting it, so
// a paying customer always receives a product.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/cost"
	"github.com/autonome-labs/autonome/internal/ledger"
	"github.com/autonome-labs/autonome/internal/model"
	"github.com/autonome-labs/autonome/pkg/pinion"
)

// Synthesizer runs the intel pipeline. Every successful skill call is charged
// to the ledger at the pricing table's rate.
type Synthesizer struct {
	skills pinion.Client
	ledger ledger.Ledger
	bus    *bus.Bus
	rates  cost.Rates
}

// NewSynthesizer wires a synthesizer. All dependencies are required.
func NewSynthesizer(skills pinion.Client, lg ledger.Ledger, b *bus.Bus, rates cost.Rates) *Synthesizer {
	return &Synthesizer{
		skills: skills,
		ledger: lg,
		bus:    b,
		rates:  rates,
	}
}

// Synthesize builds a full intelligence report for address. Skill calls run
// in a fixed order; each failure is logged, published, and papered over with
// a neutral fallback. The only error returned is context cancellation.
func (s *Synthesizer) Synthesize(ctx context.Context, address string) (*model.IntelReport, error) {
	s.bus.Publish(model.EventIntelRequest, map[string]any{"address": address})

	report := &model.IntelReport{
		ID:        uuid.NewString(),
		Address:   address,
		Timestamp: time.Now().UTC(),
	}
	var (
		spent      float64
		skillsUsed []string
	)

	charge := func(skill string) {
		rate := s.rates.For(skill)
		spent += rate
		skillsUsed = append(skillsUsed, skill)
		if err := s.ledger.RecordExpense(ctx, skill, rate); err != nil {
			zap.L().Error("failed to record skill expense",
				zap.String("skill", skill),
				zap.Error(err))
		}
		s.bus.Publish(model.EventSkillCompleted, map[string]any{
			"skill": skill,
			"cost":  rate,
		})
	}
	fail := func(skill string, err error) {
		zap.L().Warn("skill call failed, degrading report",
			zap.String("skill", skill),
			zap.String("address", address),
			zap.Error(err))
		s.bus.Publish(model.EventSkillFailed, map[string]any{
			"skill": skill,
			"error": err.Error(),
		})
	}

	// Balance.
	var eth, usdc float64
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillBalance})
	if bal, err := s.skills.Balance(ctx, address); err != nil {
		fail(cost.SkillBalance, err)
		report.Balances = model.Balances{ETH: "0", USDC: "0"}
	} else {
		charge(cost.SkillBalance)
		report.Balances = model.Balances{ETH: bal.ETH, USDC: bal.USDC}
		eth = parseAmount(bal.ETH)
		usdc = parseAmount(bal.USDC)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ETH price.
	var ethPrice float64
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillPrice})
	if p, err := s.skills.Price(ctx, "ETH"); err != nil {
		fail(cost.SkillPrice, err)
	} else {
		charge(cost.SkillPrice)
		ethPrice = p
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Funding status.
	needsFunding := false
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillFund})
	if fund, err := s.skills.Fund(ctx, address); err != nil {
		fail(cost.SkillFund, err)
	} else {
		charge(cost.SkillFund)
		needsFunding = fund.NeedsFunding()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// On-chain enrichment labels.
	var labels []string
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillEnrich})
	if raw, err := s.skills.Enrich(ctx, address); err != nil {
		fail(cost.SkillEnrich, err)
	} else {
		charge(cost.SkillEnrich)
		labels = parseEnrichLabels(raw)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Local scoring. Free and deterministic; runs on whatever data survived.
	totalUsd := eth*ethPrice + usdc
	report.EthPriceUsd = fmt.Sprintf("%.2f", ethPrice)
	report.PortfolioValueUsd = fmt.Sprintf("%.2f", totalUsd)
	report.RiskScore = RiskScore(eth, usdc, ethPrice)
	report.WalletCategory = Categorize(eth, usdc, totalUsd)
	report.PortfolioHealth = AssessHealth(eth, usdc)
	report.Anomalies = DetectAnomalies(eth, usdc, ethPrice)
	if len(labels) > 0 {
		report.ActivityPattern = labels[0]
	} else {
		report.ActivityPattern = assessActivity(needsFunding)
	}

	// AI narrative.
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillChat})
	prompt := buildAnalysisPrompt(promptInputs{
		Address:           address,
		EthBalance:        eth,
		UsdcBalance:       usdc,
		EthPrice:          ethPrice,
		PortfolioValueUsd: report.PortfolioValueUsd,
		RiskScore:         report.RiskScore,
		WalletCategory:    report.WalletCategory,
		PortfolioHealth:   report.PortfolioHealth,
		Anomalies:         report.Anomalies,
	})
	if answer, err := s.skills.Chat(ctx, prompt); err != nil {
		fail(cost.SkillChat, err)
		report.AISummary = "AI analysis unavailable"
		report.Recommendation = "Review portfolio allocation"
	} else {
		charge(cost.SkillChat)
		report.AISummary = answer
		report.Recommendation = extractRecommendation(answer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.CostToGenerate = fmt.Sprintf("%.2f", spent)
	report.SkillsUsed = skillsUsed

	s.bus.Publish(model.EventIntelCompleted, map[string]any{
		"address":   address,
		"riskScore": report.RiskScore,
		"cost":      report.CostToGenerate,
	})
	return report, nil
}

// QuickCheck is the cheap product: one balance lookup plus the simplified
// risk heuristic.
func (s *Synthesizer) QuickCheck(ctx context.Context, address string) (*model.QuickCheck, error) {
	s.bus.Publish(model.EventSkillCalling, map[string]any{"skill": cost.SkillBalance})
	bal, err := s.skills.Balance(ctx, address)
	if err != nil {
		s.bus.Publish(model.EventSkillFailed, map[string]any{
			"skill": cost.SkillBalance,
			"error": err.Error(),
		})
		return nil, err
	}

	rate := s.rates.For(cost.SkillBalance)
	if err := s.ledger.RecordExpense(ctx, cost.SkillBalance, rate); err != nil {
		zap.L().Error("failed to record skill expense",
			zap.String("skill", cost.SkillBalance),
			zap.Error(err))
	}
	s.bus.Publish(model.EventSkillCompleted, map[string]any{
		"skill": cost.SkillBalance,
		"cost":  rate,
	})

	eth := parseAmount(bal.ETH)
	usdc := parseAmount(bal.USDC)
	health := "active"
	if eth == 0 && usdc == 0 {
		health = "empty"
	}

	return &model.QuickCheck{
		Address:   address,
		Balances:  model.Balances{ETH: bal.ETH, USDC: bal.USDC},
		RiskScore: QuickRiskScore(eth, usdc),
		Health:    health,
	}, nil
}

// parseEnrichLabels extracts the labels array from an enrichment response.
// Anything unparsable yields nil; enrichment is strictly additive.
func parseEnrichLabels(raw json.RawMessage) []string {
	var resp struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return resp.Labels
}
