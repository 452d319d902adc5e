package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/report"
	"github.com/hyperengineering/tally/internal/types"
)

// Handler implements the API handlers
type Handler struct {
	ledger  ledger.Ledger
	engine  *report.Engine
	apiKey  string
	version string
}

// NewHandler creates a new Handler over the ledger and the report engine.
func NewHandler(l ledger.Ledger, engine *report.Engine, apiKey, version string) *Handler {
	return &Handler{
		ledger:  l,
		engine:  engine,
		apiKey:  apiKey,
		version: version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := types.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		FactCount: stats.FactCount,
		UserCount: stats.UserCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Balance handles GET /api/v1/balances/{subject}
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	subjectID, err := strconv.ParseInt(chi.URLParam(r, "subject"), 10, 64)
	if err != nil || subjectID == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "subject must be a non-zero integer id")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), subjectID)
	if err != nil {
		slog.Error("balance read failed", "error", err, "subject_id", subjectID)
		MapLedgerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.BalanceEntry{SubjectID: subjectID, Balance: balance})
}

// Leaderboard handles GET /api/v1/leaderboard?limit=N
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.engine.AllTime(r.Context(), limit)
	if err != nil {
		slog.Error("leaderboard read failed", "error", err)
		MapLedgerError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.BalanceEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// WeeklyLeaderboard handles GET /api/v1/leaderboard/weekly
func (h *Handler) WeeklyLeaderboard(w http.ResponseWriter, r *http.Request) {
	rep, err := h.engine.Weekly(r.Context())
	if err != nil {
		slog.Error("weekly report failed", "error", err)
		MapLedgerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rep)
}
