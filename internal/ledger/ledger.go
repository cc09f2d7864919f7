// Package ledger persists the agent's append-only financial record and the
// small agent_state key/value table, and derives all financial metrics from
// it. Entries are never updated or deleted; every aggregate is a fresh scan.
package ledger

import (
	"context"
	"time"

	"github.com/autonome-labs/autonome/internal/model"
)

// Ledger is the persistence interface for the agent's finances. Two backends
// exist: SQLite for single-node embedded operation and Postgres for
// server-grade deployments.
type Ledger interface {
	// Append-only writes. Each validates kind and amount, assigns id and
	// created_at, and commits durably before returning.
	RecordRevenue(ctx context.Context, amount float64, counterparty string) error
	RecordExpense(ctx context.Context, skill string, amount float64) error
	RecordReinvestment(ctx context.Context, amount float64, txRef string) error

	// Reads.
	RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error)
	Metrics(ctx context.Context) (*model.AgentMetrics, error)
	TimeSeries(ctx context.Context, window time.Duration) ([]model.TimeSeriesPoint, error)

	// Agent state key/value table. GetState returns "" when the key is
	// absent; SetState upserts with last-write-wins.
	SetState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// bucketRow is one per-minute aggregation bucket before accumulation.
type bucketRow struct {
	ts       time.Time
	revenue  float64
	expenses float64
}

// accumulate turns per-bucket sums into cumulative running totals, ascending
// by bucket start. Empty buckets are omitted, not zero-filled; the cumulative
// lines stay correct without them.
func accumulate(rows []bucketRow) []model.TimeSeriesPoint {
	points := make([]model.TimeSeriesPoint, 0, len(rows))
	var cumRevenue, cumExpenses float64
	for _, r := range rows {
		cumRevenue += r.revenue
		cumExpenses += r.expenses
		points = append(points, model.TimeSeriesPoint{
			Timestamp: r.ts,
			Revenue:   cumRevenue,
			Expenses:  cumExpenses,
			Profit:    cumRevenue - cumExpenses,
		})
	}
	return points
}
