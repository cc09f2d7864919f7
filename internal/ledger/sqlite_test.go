package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autonome-labs/autonome/internal/model"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	l, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestSQLite_ProfitIdentity(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// One paid report: one revenue row and four skill expenses.
	require.NoError(t, l.RecordRevenue(ctx, 0.08, "0xabc"))
	for _, skill := range []string{"balance", "price", "fund", "chat"} {
		require.NoError(t, l.RecordExpense(ctx, skill, 0.01))
	}

	m, err := l.Metrics(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, m.TotalRevenue, 1e-9)
	assert.InDelta(t, 0.04, m.TotalExpenses, 1e-9)
	assert.InDelta(t, 0.04, m.TotalProfit, 1e-9)
	assert.Equal(t, 1, m.TotalRequests)
	assert.Equal(t, 4, m.TotalSkillCalls)
	assert.Equal(t, 0, m.TotalReinvestments)
	assert.Zero(t, m.ReinvestedAmount)
}

func TestSQLite_ReinvestedAmountSumsReinvestments(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordReinvestment(ctx, 0.48, "0xhash1"))
	require.NoError(t, l.RecordReinvestment(ctx, 0.25, "0xhash2"))

	m, err := l.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalReinvestments)
	assert.InDelta(t, 0.73, m.ReinvestedAmount, 1e-9)
}

func TestSQLite_RejectsInvalidEntries(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.RecordRevenue(ctx, -1, "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative amount")

	err = l.append(ctx, model.LedgerEntry{Kind: "gift", Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")

	m, err := l.Metrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalRequests)
	assert.Zero(t, m.TotalSkillCalls)
}

func TestSQLite_RecentEntries(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordRevenue(ctx, 0.08, "0xaaa"))
	require.NoError(t, l.RecordExpense(ctx, "balance", 0.01))
	require.NoError(t, l.RecordReinvestment(ctx, 0.48, "0xdeadbeef"))

	entries, err := l.RecentEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Most recent first.
	assert.Equal(t, model.KindReinvestment, entries[0].Kind)
	assert.Equal(t, "0xdeadbeef", entries[0].TxRef)
	assert.Equal(t, model.KindExpense, entries[1].Kind)
	assert.Equal(t, "balance", entries[1].Skill)

	all, err := l.RecentEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "0xaaa", all[2].Counterparty)
	assert.Empty(t, all[2].Skill)
	assert.False(t, all[2].CreatedAt.IsZero())
}

func TestSQLite_RecentEntries_DefaultLimit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.RecordExpense(ctx, "price", 0.01))

	entries, err := l.RecentEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLite_AgentState(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Absent key yields the empty sentinel, not an error.
	v, err := l.GetState(ctx, model.StateStatus)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, l.SetState(ctx, model.StateStatus, "running"))
	v, err = l.GetState(ctx, model.StateStatus)
	require.NoError(t, err)
	assert.Equal(t, "running", v)

	// Last write wins.
	require.NoError(t, l.SetState(ctx, model.StateStatus, "stopped"))
	v, err = l.GetState(ctx, model.StateStatus)
	require.NoError(t, err)
	assert.Equal(t, "stopped", v)
}

func TestSQLite_MetricsReadBalancesFromState(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	m, err := l.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", m.CurrentEthBalance)
	assert.Equal(t, "0", m.CurrentUsdcBalance)

	require.NoError(t, l.SetState(ctx, model.StateEthBalance, "1.5"))
	require.NoError(t, l.SetState(ctx, model.StateUsdcBalance, "250.75"))

	m, err = l.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", m.CurrentEthBalance)
	assert.Equal(t, "250.75", m.CurrentUsdcBalance)
}

func TestSQLite_TimeSeries_CumulativeProfit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordRevenue(ctx, 0.08, "0xaaa"))
	require.NoError(t, l.RecordRevenue(ctx, 0.08, "0xbbb"))
	require.NoError(t, l.RecordExpense(ctx, "balance", 0.01))

	points, err := l.TimeSeries(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	// All entries land in the current minute bucket, so the last point
	// carries the full cumulative totals.
	last := points[len(points)-1]
	assert.InDelta(t, 0.16, last.Revenue, 1e-9)
	assert.InDelta(t, 0.01, last.Expenses, 1e-9)
	assert.InDelta(t, 0.15, last.Profit, 1e-9)
}

func TestSQLite_TimeSeries_ExcludesOutsideWindow(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Backdate an entry beyond the window.
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (kind, amount, created_at)
		 VALUES ('revenue', 5.0, datetime('now', '-48 hours'))`,
	)
	require.NoError(t, err)
	require.NoError(t, l.RecordRevenue(ctx, 0.08, "0xaaa"))

	points, err := l.TimeSeries(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.08, points[0].Revenue, 1e-9)
}

func TestSQLite_TimeSeries_EmptyLedger(t *testing.T) {
	l := newTestLedger(t)

	points, err := l.TimeSeries(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, points)
}
