// Package engine runs the profit control loop: periodically compare
// accumulated profit against the reinvestment threshold and, when crossed,
// swap a fixed fraction of the surplus from USDC into ETH on-chain.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/cost"
	"github.com/autonome-labs/autonome/internal/ledger"
	"github.com/autonome-labs/autonome/internal/model"
	"github.com/autonome-labs/autonome/pkg/pinion"
)

// Config tunes the control loop.
type Config struct {
	// Interval between profit checks.
	Interval time.Duration
	// Threshold is the minimum unreinvested profit (USD) before a
	// reinvestment triggers.
	Threshold float64
	// Fraction of the unreinvested surplus to swap, in (0, 1].
	Fraction float64
	// Address is the agent's own wallet, used to refresh balances after a
	// successful swap.
	Address string
	// Network names the settlement network for explorer links.
	Network string
}

// DefaultConfig returns the stock loop tuning.
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		Threshold: 0.5,
		Fraction:  0.8,
		Network:   "base-sepolia",
	}
}

// ProfitEngine owns the reinvestment loop. A single atomic flag guards
// against overlapping reinvestments: a tick that lands mid-swap is dropped,
// never queued.
type ProfitEngine struct {
	cfg    Config
	skills pinion.Client
	ledger ledger.Ledger
	bus    *bus.Bus
	rates  cost.Rates

	reinvesting atomic.Bool
}

// New wires a profit engine. Zero-value config fields fall back to defaults.
func New(cfg Config, skills pinion.Client, lg ledger.Ledger, b *bus.Bus, rates cost.Rates) *ProfitEngine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Fraction <= 0 || cfg.Fraction > 1 {
		cfg.Fraction = def.Fraction
	}
	if cfg.Network == "" {
		cfg.Network = def.Network
	}
	return &ProfitEngine{
		cfg:    cfg,
		skills: skills,
		ledger: lg,
		bus:    b,
		rates:  rates,
	}
}

// Run blocks until ctx is cancelled, checking profit every interval. Check
// failures are logged and the loop keeps going.
func (e *ProfitEngine) Run(ctx context.Context) error {
	zap.L().Info("profit engine started",
		zap.Duration("interval", e.cfg.Interval),
		zap.Float64("threshold", e.cfg.Threshold),
		zap.Float64("fraction", e.cfg.Fraction))
	e.bus.Publish(model.EventProfitEngineStarted, map[string]any{
		"interval":  e.cfg.Interval.String(),
		"threshold": e.cfg.Threshold,
	})

	// Check immediately, then every interval.
	if err := e.CheckAndReinvest(ctx); err != nil {
		zap.L().Error("profit check failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("profit engine stopped")
			e.bus.Publish(model.EventProfitEngineStopped, nil)
			return nil
		case <-ticker.C:
			if err := e.CheckAndReinvest(ctx); err != nil {
				zap.L().Error("profit check failed", zap.Error(err))
			}
		}
	}
}

// CheckAndReinvest runs one profit check. It returns nil when the threshold
// is not met or a reinvestment is already in flight.
func (e *ProfitEngine) CheckAndReinvest(ctx context.Context) error {
	if !e.reinvesting.CompareAndSwap(false, true) {
		zap.L().Debug("reinvestment already in flight, dropping tick")
		return nil
	}
	defer e.reinvesting.Store(false)

	metrics, err := e.ledger.Metrics(ctx)
	if err != nil {
		return eris.Wrap(err, "engine: load metrics")
	}

	unreinvested := metrics.Unreinvested()
	e.bus.Publish(model.EventProfitEngineCheck, map[string]any{
		"totalProfit":  metrics.TotalProfit,
		"unreinvested": unreinvested,
	})

	if metrics.ReinvestedAmount > metrics.TotalProfit {
		zap.L().Warn("reinvested amount exceeds total profit",
			zap.Float64("reinvested", metrics.ReinvestedAmount),
			zap.Float64("profit", metrics.TotalProfit))
	}

	if unreinvested < e.cfg.Threshold {
		return nil
	}

	amount := round2(unreinvested * e.cfg.Fraction)
	if amount <= 0 {
		return nil
	}
	return e.executeReinvestment(ctx, amount)
}

// executeReinvestment swaps amount USDC into ETH: quote the trade, broadcast
// the approval when one is required, broadcast the swap, then record the
// reinvestment against the returned transaction hash.
func (e *ProfitEngine) executeReinvestment(ctx context.Context, amount float64) error {
	amountStr := fmt.Sprintf("%.2f", amount)
	zap.L().Info("reinvesting profit",
		zap.String("amount", amountStr),
		zap.String("pair", "USDC->ETH"))
	e.bus.Publish(model.EventReinvestStarting, map[string]any{"amount": amountStr})

	quote, err := e.skills.Trade(ctx, "USDC", "ETH", amountStr)
	if err != nil {
		return e.failReinvest(eris.Wrap(err, "engine: quote trade"))
	}
	e.recordSkillExpense(ctx, cost.SkillTrade)

	if len(quote.Approve) > 0 {
		if _, err := e.skills.Broadcast(ctx, quote.Approve); err != nil {
			return e.failReinvest(eris.Wrap(err, "engine: broadcast approval"))
		}
		e.recordSkillExpense(ctx, cost.SkillBroadcast)
	}

	res, err := e.skills.Broadcast(ctx, quote.Swap)
	if err != nil {
		return e.failReinvest(eris.Wrap(err, "engine: broadcast swap"))
	}
	e.recordSkillExpense(ctx, cost.SkillBroadcast)

	if err := e.ledger.RecordReinvestment(ctx, amount, res.Hash); err != nil {
		return e.failReinvest(eris.Wrap(err, "engine: record reinvestment"))
	}

	zap.L().Info("reinvestment completed",
		zap.String("amount", amountStr),
		zap.String("txHash", res.Hash))
	e.bus.Publish(model.EventReinvestCompleted, map[string]any{
		"amount":   amountStr,
		"txHash":   res.Hash,
		"explorer": pinion.ExplorerTxURL(res.Hash, e.cfg.Network),
	})

	e.refreshBalances(ctx)
	return nil
}

func (e *ProfitEngine) failReinvest(err error) error {
	e.bus.Publish(model.EventReinvestFailed, map[string]any{"error": err.Error()})
	return err
}

// refreshBalances re-reads the agent wallet after a swap and caches the
// result in agent_state. Best effort; a failure here never fails the
// reinvestment that already landed.
func (e *ProfitEngine) refreshBalances(ctx context.Context) {
	if e.cfg.Address == "" {
		return
	}
	bal, err := e.skills.Balance(ctx, e.cfg.Address)
	if err != nil {
		zap.L().Warn("post-reinvestment balance refresh failed", zap.Error(err))
		return
	}
	e.recordSkillExpense(ctx, cost.SkillBalance)

	if err := e.ledger.SetState(ctx, model.StateEthBalance, bal.ETH); err != nil {
		zap.L().Warn("failed to cache eth balance", zap.Error(err))
	}
	if err := e.ledger.SetState(ctx, model.StateUsdcBalance, bal.USDC); err != nil {
		zap.L().Warn("failed to cache usdc balance", zap.Error(err))
	}
	e.bus.Publish(model.EventBalanceUpdated, map[string]any{
		"eth":  bal.ETH,
		"usdc": bal.USDC,
	})
}

func (e *ProfitEngine) recordSkillExpense(ctx context.Context, skill string) {
	if err := e.ledger.RecordExpense(ctx, skill, e.rates.For(skill)); err != nil {
		zap.L().Error("failed to record skill expense",
			zap.String("skill", skill),
			zap.Error(err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
