package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/dukerupert/taskwheel/internal/store"
)

var timeFormatRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type SettingsHandler struct {
	settings *store.SettingsStore
}

func NewSettingsHandler(ss *store.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: ss}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update writes engine settings. Changes take effect on the next operation;
// nothing running is interrupted.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := validateSettings(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for key, value := range req {
		if err := h.settings.Set(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	settings, err := h.settings.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func validateSettings(settings map[string]string) error {
	allowedKeys := map[string]bool{
		store.KeyDistributionTime: true,
		store.KeyDailyClaimLimit:  true,
		store.KeyUndoWindowHours:  true,
	}

	for key, value := range settings {
		if !allowedKeys[key] {
			return fmt.Errorf("unknown setting: %s", key)
		}

		switch key {
		case store.KeyDistributionTime:
			if !timeFormatRegexp.MatchString(value) {
				return fmt.Errorf("%s must be HH:MM format", key)
			}
		case store.KeyDailyClaimLimit:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 20 {
				return fmt.Errorf("%s must be 1-20", key)
			}
		case store.KeyUndoWindowHours:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 168 {
				return fmt.Errorf("%s must be 1-168", key)
			}
		}
	}
	return nil
}
