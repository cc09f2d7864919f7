package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonome-labs/autonome/internal/bus"
	"github.com/autonome-labs/autonome/internal/cost"
	"github.com/autonome-labs/autonome/internal/model"
	"github.com/autonome-labs/autonome/pkg/pinion"
)

// fakeSkills scripts the trade pipeline and records every call.
type fakeSkills struct {
	mu         sync.Mutex
	tradeAmts  []string
	broadcasts []json.RawMessage
	balances   pinion.Balances

	tradeErr     error
	broadcastErr error
	withApprove  bool

	// tradeGate, when set, blocks Trade until the channel is closed.
	tradeGate chan struct{}
}

func (f *fakeSkills) Balance(ctx context.Context, address string) (pinion.Balances, error) {
	return f.balances, nil
}

func (f *fakeSkills) Price(ctx context.Context, symbol string) (float64, error) { return 2650, nil }

func (f *fakeSkills) Fund(ctx context.Context, address string) (*pinion.FundStatus, error) {
	return &pinion.FundStatus{Funded: true}, nil
}

func (f *fakeSkills) Chat(ctx context.Context, prompt string) (string, error) { return "", nil }

func (f *fakeSkills) Trade(ctx context.Context, source, target, amount string) (*pinion.TradeQuote, error) {
	if f.tradeGate != nil {
		<-f.tradeGate
	}
	f.mu.Lock()
	f.tradeAmts = append(f.tradeAmts, amount)
	f.mu.Unlock()
	if f.tradeErr != nil {
		return nil, f.tradeErr
	}
	q := &pinion.TradeQuote{Swap: json.RawMessage(`{"to":"0xrouter"}`)}
	if f.withApprove {
		q.Approve = json.RawMessage(`{"to":"0xusdc"}`)
	}
	return q, nil
}

func (f *fakeSkills) Broadcast(ctx context.Context, tx json.RawMessage) (*pinion.BroadcastResult, error) {
	f.mu.Lock()
	f.broadcasts = append(f.broadcasts, tx)
	f.mu.Unlock()
	if f.broadcastErr != nil {
		return nil, f.broadcastErr
	}
	return &pinion.BroadcastResult{Hash: "0xdeadbeef"}, nil
}

func (f *fakeSkills) Enrich(ctx context.Context, address string) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeSkills) trades() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tradeAmts...)
}

// fakeLedger serves scripted metrics and records writes.
type fakeLedger struct {
	mu            sync.Mutex
	metrics       model.AgentMetrics
	metricsErr    error
	reinvestments []struct {
		Amount float64
		TxRef  string
	}
	expenses map[string]int
	state    map[string]string
}

func newFakeLedger(m model.AgentMetrics) *fakeLedger {
	return &fakeLedger{
		metrics:  m,
		expenses: map[string]int{},
		state:    map[string]string{},
	}
}

func (f *fakeLedger) Metrics(ctx context.Context) (*model.AgentMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	m := f.metrics
	return &m, nil
}

func (f *fakeLedger) RecordReinvestment(ctx context.Context, amount float64, txRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinvestments = append(f.reinvestments, struct {
		Amount float64
		TxRef  string
	}{amount, txRef})
	// Mirror what a real ledger scan would now report.
	f.metrics.ReinvestedAmount += amount
	f.metrics.TotalReinvestments++
	return nil
}

func (f *fakeLedger) RecordExpense(ctx context.Context, skill string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expenses[skill]++
	return nil
}

func (f *fakeLedger) RecordRevenue(ctx context.Context, amount float64, counterparty string) error {
	return nil
}

func (f *fakeLedger) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) TimeSeries(ctx context.Context, window time.Duration) ([]model.TimeSeriesPoint, error) {
	return nil, nil
}

func (f *fakeLedger) SetState(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[key] = value
	return nil
}

func (f *fakeLedger) GetState(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeLedger) Migrate(ctx context.Context) error { return nil }
func (f *fakeLedger) Close() error                      { return nil }

func newTestEngine(skills *fakeSkills, lg *fakeLedger) (*ProfitEngine, *bus.Bus) {
	b := bus.New(0)
	e := New(Config{
		Interval:  time.Hour, // ticks driven manually in tests
		Threshold: 0.5,
		Fraction:  0.8,
		Address:   "0xagent",
	}, skills, lg, b, cost.DefaultRates())
	return e, b
}

func TestCheckAndReinvest_BelowThreshold(t *testing.T) {
	skills := &fakeSkills{}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.4})
	e, _ := newTestEngine(skills, lg)

	require.NoError(t, e.CheckAndReinvest(context.Background()))
	assert.Empty(t, skills.trades())
	assert.Empty(t, lg.reinvestments)
}

func TestCheckAndReinvest_SwapsEightyPercent(t *testing.T) {
	skills := &fakeSkills{balances: pinion.Balances{ETH: "0.002", USDC: "9.52"}}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.6})
	e, b := newTestEngine(skills, lg)

	require.NoError(t, e.CheckAndReinvest(context.Background()))

	// 0.6 unreinvested * 0.8 = 0.48.
	assert.Equal(t, []string{"0.48"}, skills.trades())
	require.Len(t, lg.reinvestments, 1)
	assert.InDelta(t, 0.48, lg.reinvestments[0].Amount, 1e-9)
	assert.Equal(t, "0xdeadbeef", lg.reinvestments[0].TxRef)

	// Swap broadcast, no approval needed, plus the balance refresh.
	assert.Len(t, skills.broadcasts, 1)
	assert.Equal(t, "0.002", lg.state[model.StateEthBalance])
	assert.Equal(t, "9.52", lg.state[model.StateUsdcBalance])

	// trade + broadcast + balance refresh each charged once.
	assert.Equal(t, 1, lg.expenses[cost.SkillTrade])
	assert.Equal(t, 1, lg.expenses[cost.SkillBroadcast])
	assert.Equal(t, 1, lg.expenses[cost.SkillBalance])

	events := b.Recent(0)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, model.EventReinvestStarting)
	assert.Contains(t, types, model.EventReinvestCompleted)
	assert.Contains(t, types, model.EventBalanceUpdated)
}

func TestCheckAndReinvest_ApprovalBroadcastFirst(t *testing.T) {
	skills := &fakeSkills{withApprove: true}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 1.0})
	e, _ := newTestEngine(skills, lg)

	require.NoError(t, e.CheckAndReinvest(context.Background()))

	require.Len(t, skills.broadcasts, 2)
	assert.JSONEq(t, `{"to":"0xusdc"}`, string(skills.broadcasts[0]))
	assert.JSONEq(t, `{"to":"0xrouter"}`, string(skills.broadcasts[1]))
	assert.Equal(t, 2, lg.expenses[cost.SkillBroadcast])
}

func TestCheckAndReinvest_CountsPriorReinvestments(t *testing.T) {
	skills := &fakeSkills{}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 1.0, ReinvestedAmount: 0.7})
	e, _ := newTestEngine(skills, lg)

	// Unreinvested is 0.3, below the 0.5 threshold.
	require.NoError(t, e.CheckAndReinvest(context.Background()))
	assert.Empty(t, skills.trades())
}

func TestCheckAndReinvest_TradeFailure(t *testing.T) {
	skills := &fakeSkills{tradeErr: eris.New("no liquidity")}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.6})
	e, b := newTestEngine(skills, lg)

	err := e.CheckAndReinvest(context.Background())
	require.Error(t, err)
	assert.Empty(t, lg.reinvestments)

	var failed bool
	for _, ev := range b.Recent(0) {
		if ev.Type == model.EventReinvestFailed {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestCheckAndReinvest_SwapFailureRecordsNothing(t *testing.T) {
	skills := &fakeSkills{broadcastErr: eris.New("rpc down")}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.6})
	e, _ := newTestEngine(skills, lg)

	require.Error(t, e.CheckAndReinvest(context.Background()))
	assert.Empty(t, lg.reinvestments)
}

func TestCheckAndReinvest_DropsOverlappingTick(t *testing.T) {
	gate := make(chan struct{})
	skills := &fakeSkills{tradeGate: gate}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.6})
	e, _ := newTestEngine(skills, lg)

	done := make(chan error, 1)
	go func() { done <- e.CheckAndReinvest(context.Background()) }()

	// Wait for the first check to get stuck inside Trade.
	require.Eventually(t, func() bool {
		return e.reinvesting.Load()
	}, time.Second, time.Millisecond)

	// Overlapping tick returns immediately without trading.
	require.NoError(t, e.CheckAndReinvest(context.Background()))
	assert.Empty(t, skills.trades())

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"0.48"}, skills.trades())
	assert.Len(t, lg.reinvestments, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	skills := &fakeSkills{}
	lg := newFakeLedger(model.AgentMetrics{})
	b := bus.New(0)
	e := New(Config{Interval: 5 * time.Millisecond}, skills, lg, b, cost.DefaultRates())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Let at least one tick fire.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on cancel")
	}

	types := make(map[string]bool)
	for _, ev := range b.Recent(0) {
		types[ev.Type] = true
	}
	assert.True(t, types[model.EventProfitEngineStarted])
	assert.True(t, types[model.EventProfitEngineStopped])
	assert.True(t, types[model.EventProfitEngineCheck])
}

func TestRun_ChecksImmediately(t *testing.T) {
	skills := &fakeSkills{}
	lg := newFakeLedger(model.AgentMetrics{TotalProfit: 0.6})
	b := bus.New(0)
	// An hour-long interval: only the startup check can trade.
	e := New(Config{Interval: time.Hour, Threshold: 0.5, Fraction: 0.8}, skills, lg, b, cost.DefaultRates())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(skills.trades()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0.48"}, skills.trades())

	cancel()
	require.NoError(t, <-done)
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 0.48, round2(0.48000000001), 1e-12)
	assert.InDelta(t, 0.49, round2(0.486), 1e-12)
	assert.InDelta(t, 0.0, round2(0.004), 1e-12)
}

func TestNew_Defaults(t *testing.T) {
	e := New(Config{}, &fakeSkills{}, newFakeLedger(model.AgentMetrics{}), bus.New(0), cost.DefaultRates())
	assert.Equal(t, 30*time.Second, e.cfg.Interval)
	assert.InDelta(t, 0.5, e.cfg.Threshold, 1e-9)
	assert.InDelta(t, 0.8, e.cfg.Fraction, 1e-9)
	assert.Equal(t, "base-sepolia", e.cfg.Network)
}
