package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskwheel/internal/engine"
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/store"
)

// InstanceHandler exposes the instance lifecycle. All state transitions go
// through the engine; listings read the store directly.
type InstanceHandler struct {
	engine    *engine.Engine
	instances *store.InstanceStore
	logger    *slog.Logger
}

func NewInstanceHandler(e *engine.Engine, is *store.InstanceStore, logger *slog.Logger) *InstanceHandler {
	return &InstanceHandler{engine: e, instances: is, logger: logger}
}

// Board lists every open instance: the household's current work.
func (h *InstanceHandler) Board(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.ListOpen()
	if err != nil {
		h.logger.Error("list open instances", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}
	if instances == nil {
		instances = []model.TaskInstance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

// Blocked lists blocked instances with their reasons, for the admin view.
func (h *InstanceHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.ListBlocked()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list blocked instances")
		return
	}
	if instances == nil {
		instances = []model.TaskInstance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	inst, err := h.instances.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get instance")
		return
	}
	if inst == nil {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type claimRequest struct {
	PersonID int64 `json:"person_id"`
}

func (h *InstanceHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inst, warning, err := h.engine.Claim(id, req.PersonID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := map[string]any{"instance": inst}
	if warning != "" {
		resp["warning"] = warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InstanceHandler) Unclaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inst, err := h.engine.Unclaim(id, req.PersonID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Assign is the manual override: it ignores the daily limit, exclusion
// flags, and the difficult-task constraint, and resolves blocked instances.
func (h *InstanceHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inst, err := h.engine.AssignManually(id, req.PersonID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type completeRequest struct {
	ContributorIDs []int64 `json:"contributor_ids"`
}

func (h *InstanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req completeRequest
	json.NewDecoder(r.Body).Decode(&req)

	completion, err := h.engine.Complete(id, req.ContributorIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

type undoRequest struct {
	AdminID int64 `json:"admin_id"`
}

func (h *InstanceHandler) Undo(w http.ResponseWriter, r *http.Request) {
	completionID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req undoRequest
	json.NewDecoder(r.Body).Decode(&req)

	inst, err := h.engine.Undo(completionID, req.AdminID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type skipRequest struct {
	AdminID int64  `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (h *InstanceHandler) Skip(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req skipRequest
	json.NewDecoder(r.Body).Decode(&req)

	inst, err := h.engine.Skip(id, req.AdminID, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *InstanceHandler) Unskip(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req undoRequest
	json.NewDecoder(r.Body).Decode(&req)

	inst, err := h.engine.Unskip(id, req.AdminID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type rescheduleRequest struct {
	DueAt        time.Time `json:"due_at"`
	DistributeAt time.Time `json:"distribute_at"`
}

func (h *InstanceHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inst, err := h.engine.Reschedule(id, req.DueAt, req.DistributeAt)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
