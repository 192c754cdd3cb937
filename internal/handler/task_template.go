package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/taskwheel/internal/engine"
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/store"
)

// TemplateHandler exposes template CRUD. Writes go through the engine so
// save-time validation and same-day instance creation apply; reads hit the
// store.
type TemplateHandler struct {
	engine    *engine.Engine
	templates *store.TemplateStore
	logger    *slog.Logger
}

func NewTemplateHandler(e *engine.Engine, ts *store.TemplateStore, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{engine: e, templates: ts, logger: logger}
}

type templateRequest struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Points           int     `json:"points"`
	RecurrenceRule   string  `json:"recurrence_rule"`
	IsPool           bool    `json:"is_pool"`
	AssignedTo       *int64  `json:"assigned_to"`
	IsUndesirable    bool    `json:"is_undesirable"`
	IsDifficult      bool    `json:"is_difficult"`
	ShiftOnLate      bool    `json:"shift_on_late"`
	DistributionTime string  `json:"distribution_time"`
	ParentID         *int64  `json:"parent_id"`
	SpawnDelayHours  int     `json:"spawn_delay_hours"`
	Roster           []int64 `json:"roster"`
}

func (r templateRequest) input() engine.TemplateInput {
	return engine.TemplateInput{
		Name:             strings.TrimSpace(r.Name),
		Description:      r.Description,
		Points:           r.Points,
		RecurrenceRule:   r.RecurrenceRule,
		IsPool:           r.IsPool,
		AssignedTo:       r.AssignedTo,
		IsUndesirable:    r.IsUndesirable,
		IsDifficult:      r.IsDifficult,
		ShiftOnLate:      r.ShiftOnLate,
		DistributionTime: r.DistributionTime,
		ParentID:         r.ParentID,
		SpawnDelayHours:  r.SpawnDelayHours,
		Roster:           r.Roster,
	}
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tmpl, err := h.engine.CreateTemplate(req.input())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		templates []model.TaskTemplate
		err       error
	)
	if r.URL.Query().Get("all") == "true" {
		templates, err = h.templates.ListAll()
	} else {
		templates, err = h.templates.ListActive()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []model.TaskTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	tmpl, err := h.templates.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	if tmpl == nil {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	roster, err := h.templates.Roster(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get roster")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template": tmpl, "roster": roster})
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tmpl, err := h.engine.UpdateTemplate(id, req.input())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *TemplateHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.engine.DeactivateTemplate(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.engine.ReactivateTemplate(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
