package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/taskwheel/internal/engine"
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/store"
)

// PointsHandler exposes balances, the ledger, weekly snapshots, and the
// admin adjustment surface.
type PointsHandler struct {
	engine    *engine.Engine
	ledger    *store.LedgerStore
	snapshots *store.SnapshotStore
	logger    *slog.Logger
}

func NewPointsHandler(e *engine.Engine, ls *store.LedgerStore, ss *store.SnapshotStore, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{engine: e, ledger: ls, snapshots: ss, logger: logger}
}

// Leaderboard ranks point-eligible people by balance earned this week.
func (h *PointsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.ledger.Leaderboard(recurrence.WeekStart(time.Now()))
	if err != nil {
		h.logger.Error("leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build leaderboard")
		return
	}
	if board == nil {
		board = []model.PointBalance{}
	}
	writeJSON(w, http.StatusOK, board)
}

// Balance returns a person's all-time balance in hundredths.
func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	balance, err := h.ledger.BalanceFor(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance_hundredths": balance})
}

// Entries returns a person's recent ledger history, newest first.
func (h *PointsHandler) Entries(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.ledger.EntriesFor(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Snapshots returns a person's weekly snapshot history.
func (h *PointsHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	snaps, err := h.snapshots.ListForPerson(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

type adjustRequest struct {
	DeltaHundredths int64  `json:"delta_hundredths"`
	Note            string `json:"note"`
	AdminID         int64  `json:"admin_id"`
}

// Adjust appends a manual ledger correction for a person.
func (h *PointsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.engine.AdjustBalance(id, req.DeltaHundredths, req.Note, req.AdminID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	AdminID int64 `json:"admin_id"`
}

// ResetBalance zeroes a person's running balance via a reset ledger entry.
func (h *PointsHandler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.engine.ResetBalance(id, req.AdminID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type streakRequest struct {
	Streak  int   `json:"streak"`
	AdminID int64 `json:"admin_id"`
}

// OverrideStreak force-sets a person's streak counter.
func (h *PointsHandler) OverrideStreak(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req streakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.engine.OverrideStreak(id, req.Streak, req.AdminID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
