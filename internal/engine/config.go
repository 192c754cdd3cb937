package engine

import (
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/store"
)

// Config is the immutable settings snapshot an operation runs under. Each
// engine operation reads one snapshot up front; a settings change mid-flight
// never affects an operation already running.
type Config struct {
	DistributionTime string // "HH:MM", default distribution time of day
	DailyClaimLimit  int
	UndoWindow       time.Duration
}

// Defaults used when the settings table is missing or unreadable.
var defaultConfig = Config{
	DistributionTime: "08:00",
	DailyClaimLimit:  3,
	UndoWindow:       24 * time.Hour,
}

// loadConfig reads the current settings into a Config snapshot.
func loadConfig(settings *store.SettingsStore) Config {
	cfg := defaultConfig
	if settings == nil {
		return cfg
	}

	if v, err := settings.Get(store.KeyDistributionTime); err == nil {
		if _, parseErr := parseClock(v); parseErr == nil {
			cfg.DistributionTime = v
		}
	}
	cfg.DailyClaimLimit = settings.GetInt(store.KeyDailyClaimLimit, cfg.DailyClaimLimit)
	if hours := settings.GetInt(store.KeyUndoWindowHours, 24); hours > 0 {
		cfg.UndoWindow = time.Duration(hours) * time.Hour
	}
	return cfg
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
