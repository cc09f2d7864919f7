package server

import (
	"encoding/json"
	"net/http"
	"regexp"

	"go.uber.org/zap"
)

// evmAddress matches a 0x-prefixed 20-byte hex address. Validation runs
// before any charge so a typo never costs the caller money.
var evmAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
