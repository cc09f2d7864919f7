package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/model"
)

const (
	ssePollInterval = 2 * time.Second
	sseMaxLifetime  = 30 * time.Second
)

// handleEvents streams dashboard updates over SSE: a metrics snapshot every
// poll interval plus live agent events. Connections are capped at a short
// lifetime; clients reconnect, which keeps dead dashboards from pinning
// goroutines.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Current state immediately, then refreshed every poll tick.
	s.writeSnapshot(r.Context(), w)
	flusher.Flush()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(sseMaxLifetime)
	defer deadline.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			writeSSE(w, "bye", map[string]any{"reason": "lifetime reached"})
			flusher.Flush()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, "agent", ev)
			flusher.Flush()
		case <-ticker.C:
			s.writeSnapshot(ctx, w)
			flusher.Flush()
		}
	}
}

const sseTransactionLimit = 20

// writeSnapshot emits the polled frame pair: a metrics event and a recent
// transactions event. Read failures skip the frame, never the stream.
func (s *Server) writeSnapshot(ctx context.Context, w http.ResponseWriter) {
	if snapshot, err := s.metricsSnapshot(ctx); err != nil {
		zap.L().Warn("sse metrics snapshot failed", zap.Error(err))
	} else {
		writeSSE(w, "metrics", snapshot)
	}

	entries, err := s.ledger.RecentEntries(ctx, sseTransactionLimit)
	if err != nil {
		zap.L().Warn("sse transactions snapshot failed", zap.Error(err))
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeSSE(w, "transactions", entries)
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("failed to marshal sse payload", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
