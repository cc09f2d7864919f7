package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// EntryKind classifies a ledger entry. The set is closed; entries are
// immutable once written.
type EntryKind string

const (
	KindRevenue      EntryKind = "revenue"
	KindExpense      EntryKind = "expense"
	KindReinvestment EntryKind = "reinvestment"
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindRevenue, KindExpense, KindReinvestment:
		return true
	}
	return false
}

// LedgerEntry is a single append-only financial event. Skill is set only for
// expenses, Counterparty only for revenue, TxRef only for reinvestments.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	Kind         EntryKind `json:"kind"`
	Skill        string    `json:"skill,omitempty"`
	Amount       float64   `json:"amount"`
	Counterparty string    `json:"counterparty,omitempty"`
	TxRef        string    `json:"tx_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the write-time invariants for a new entry.
func (e LedgerEntry) Validate() error {
	if !e.Kind.Valid() {
		return eris.Errorf("ledger entry: unknown kind %q", e.Kind)
	}
	if e.Amount < 0 {
		return eris.Errorf("ledger entry: negative amount %f", e.Amount)
	}
	return nil
}

// AgentMetrics is the derived read-side view of the ledger. It is always
// computed by scanning entries, never stored.
type AgentMetrics struct {
	TotalRevenue       float64 `json:"totalRevenue"`
	TotalExpenses      float64 `json:"totalExpenses"`
	TotalProfit        float64 `json:"totalProfit"`
	TotalRequests      int     `json:"totalRequests"`
	TotalSkillCalls    int     `json:"totalSkillCalls"`
	TotalReinvestments int     `json:"totalReinvestments"`
	ReinvestedAmount   float64 `json:"reinvestedAmount"`
	CurrentEthBalance  string  `json:"currentEthBalance"`
	CurrentUsdcBalance string  `json:"currentUsdcBalance"`
}

// Unreinvested returns the profit not yet consumed by reinvestments.
func (m AgentMetrics) Unreinvested() float64 {
	return m.TotalProfit - m.ReinvestedAmount
}

// TimeSeriesPoint is one chart bucket with cumulative running totals.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Revenue   float64   `json:"revenue"`
	Expenses  float64   `json:"expenses"`
	Profit    float64   `json:"profit"`
}

// Agent state keys persisted in the key/value table.
const (
	StateStatus      = "status"
	StateStartedAt   = "started_at"
	StateStoppedAt   = "stopped_at"
	StateEthBalance  = "eth_balance"
	StateUsdcBalance = "usdc_balance"
)
