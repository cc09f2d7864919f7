package server

import (
	"context"
	"net/http"
	"time"

	"github.com/autonome-labs/autonome/internal/model"
)

const (
	recentTransactionLimit = 100
	timeSeriesWindow       = 24 * time.Hour
)

// metricsPayload is AgentMetrics plus the advertised agent status label, the
// shape the dashboard polls for.
type metricsPayload struct {
	model.AgentMetrics
	AgentStatus string `json:"agentStatus"`
}

func (s *Server) metricsSnapshot(ctx context.Context) (metricsPayload, error) {
	metrics, err := s.ledger.Metrics(ctx)
	if err != nil {
		return metricsPayload{}, err
	}
	status, err := s.ledger.GetState(ctx, model.StateStatus)
	if err != nil {
		return metricsPayload{}, err
	}
	if status == "" {
		status = "unknown"
	}
	return metricsPayload{AgentMetrics: *metrics, AgentStatus: status}, nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.metricsSnapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.RecentEntries(r.Context(), recentTransactionLimit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	points, err := s.ledger.TimeSeries(r.Context(), timeSeriesWindow)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if points == nil {
		points = []model.TimeSeriesPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// agentStatus is the response of GET /api/agent/status and the agent
// start/stop endpoints.
type agentStatus struct {
	Status    string              `json:"status"`
	StartedAt string              `json:"startedAt,omitempty"`
	StoppedAt string              `json:"stoppedAt,omitempty"`
	Wallet    *walletBalances     `json:"wallet,omitempty"`
	Metrics   *model.AgentMetrics `json:"metrics,omitempty"`
}

type walletBalances struct {
	ETH  string `json:"eth"`
	USDC string `json:"usdc"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := s.ledger.GetState(ctx, model.StateStatus)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if status == "" {
		status = "unknown"
	}
	startedAt, err := s.ledger.GetState(ctx, model.StateStartedAt)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	stoppedAt, err := s.ledger.GetState(ctx, model.StateStoppedAt)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	metrics, err := s.ledger.Metrics(ctx)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentStatus{
		Status:    status,
		StartedAt: startedAt,
		StoppedAt: stoppedAt,
		Wallet: &walletBalances{
			ETH:  metrics.CurrentEthBalance,
			USDC: metrics.CurrentUsdcBalance,
		},
		Metrics: metrics,
	})
}

// handleAgentStart flips the advertised agent status to running. The status
// label drives the dashboard only; serving and the profit loop follow the
// process lifecycle, not this flag.
func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.ledger.SetState(ctx, model.StateStatus, "running"); err != nil {
		writeInternalError(w, err)
		return
	}
	if err := s.ledger.SetState(ctx, model.StateStartedAt, now); err != nil {
		writeInternalError(w, err)
		return
	}
	s.bus.Publish(model.EventAgentStarted, map[string]any{"startedAt": now})
	writeJSON(w, http.StatusOK, agentStatus{Status: "running", StartedAt: now})
}

func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.ledger.SetState(ctx, model.StateStatus, "stopped"); err != nil {
		writeInternalError(w, err)
		return
	}
	if err := s.ledger.SetState(ctx, model.StateStoppedAt, now); err != nil {
		writeInternalError(w, err)
		return
	}
	s.bus.Publish(model.EventAgentStopped, map[string]any{"stoppedAt": now})
	writeJSON(w, http.StatusOK, agentStatus{Status: "stopped", StoppedAt: now})
}
