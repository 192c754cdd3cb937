package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/store"
)

type PersonHandler struct {
	persons *store.PersonStore
	logger  *slog.Logger
}

func NewPersonHandler(ps *store.PersonStore, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{persons: ps, logger: logger}
}

type personRequest struct {
	Name             string `json:"name"`
	Assignable       bool   `json:"assignable"`
	ExcludedFromAuto bool   `json:"excluded_from_auto"`
	PointsEligible   bool   `json:"points_eligible"`
}

func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	person, err := h.persons.Create(store.PersonParams{
		Name:             req.Name,
		Assignable:       req.Assignable,
		ExcludedFromAuto: req.ExcludedFromAuto,
		PointsEligible:   req.PointsEligible,
	})
	if err != nil {
		h.logger.Error("create person", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create person")
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.persons.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	if people == nil {
		people = []model.Person{}
	}
	writeJSON(w, http.StatusOK, people)
}

func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	person, err := h.persons.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.persons.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	var req personRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	person, err := h.persons.Update(id, store.PersonParams{
		Name:             req.Name,
		Assignable:       req.Assignable,
		ExcludedFromAuto: req.ExcludedFromAuto,
		PointsEligible:   req.PointsEligible,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// Deactivate soft-deletes: ledger history and past completions stay.
func (h *PersonHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.persons.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get person")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}

	if err := h.persons.Deactivate(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to deactivate person")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
