package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskwheel/internal/backup"
	"github.com/dukerupert/taskwheel/internal/engine"
)

// AdminHandler triggers tick work on demand, for operators who do not want
// to wait for the scheduler, and exposes the backup controls.
type AdminHandler struct {
	engine  *engine.Engine
	backups *backup.Manager
	logger  *slog.Logger
}

func NewAdminHandler(e *engine.Engine, backups *backup.Manager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: e, backups: backups, logger: logger}
}

func (h *AdminHandler) RunMidnight(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if err := h.engine.ResetDailyCounters(); err != nil {
		h.logger.Error("reset daily counters", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset counters")
		return
	}
	marked, err := h.engine.MarkOverdueInstances(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark overdue")
		return
	}
	created, err := h.engine.CreateDueInstances(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create instances")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created, "marked_overdue": marked})
}

func (h *AdminHandler) RunDistribution(w http.ResponseWriter, r *http.Request) {
	touched, err := h.engine.RunDistribution(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to run distribution")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"touched": touched})
}

func (h *AdminHandler) RunSnapshot(w http.ResponseWriter, r *http.Request) {
	taken, err := h.engine.TakeWeeklySnapshot(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to take snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": len(taken)})
}

func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	key, err := h.backups.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.Status())
}
