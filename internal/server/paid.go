package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/autonome-labs/autonome/internal/model"
)

// handleIntel serves the full intelligence report. The caller is charged the
// intel price; the address is validated before anything is billed or spent.
func (s *Server) handleIntel(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !evmAddress.MatchString(address) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	report, err := s.intel.Synthesize(r.Context(), address)
	if err != nil {
		s.bus.Publish(model.EventIntelFailed, map[string]any{
			"address": address,
			"error":   err.Error(),
		})
		writeInternalError(w, err)
		return
	}

	s.recordRevenue(r, s.cfg.IntelPrice)
	writeJSON(w, http.StatusOK, report)
}

// handleCheck serves the cheap balance check.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !evmAddress.MatchString(address) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	check, err := s.intel.QuickCheck(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusBadGateway, "balance lookup unavailable")
		return
	}

	s.recordRevenue(r, s.cfg.CheckPrice)
	writeJSON(w, http.StatusOK, check)
}

// recordRevenue books the charge for a served paid request. The customer was
// already served, so a ledger failure is logged rather than returned.
func (s *Server) recordRevenue(r *http.Request, price float64) {
	payer := r.Header.Get("X-Payment-Address")
	if err := s.ledger.RecordRevenue(r.Context(), price, payer); err != nil {
		zap.L().Error("failed to record revenue",
			zap.Float64("amount", price),
			zap.String("payer", payer),
			zap.Error(err))
	}
}
