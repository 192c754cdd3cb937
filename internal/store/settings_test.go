package store

import "testing"

func TestSettingsSeededDefaults(t *testing.T) {
	db := setupTestDB(t)
	s := NewSettingsStore(db)

	v, err := s.Get(KeyDistributionTime)
	if err != nil {
		t.Fatalf("get distribution time: %v", err)
	}
	if v != "08:00" {
		t.Errorf("distribution_time = %q, want 08:00", v)
	}

	if got := s.GetInt(KeyDailyClaimLimit, 0); got != 3 {
		t.Errorf("daily_claim_limit = %d, want 3", got)
	}
	if got := s.GetInt(KeyUndoWindowHours, 0); got != 24 {
		t.Errorf("undo_window_hours = %d, want 24", got)
	}
}

func TestSettingsSetAndGetAll(t *testing.T) {
	db := setupTestDB(t)
	s := NewSettingsStore(db)

	if err := s.Set(KeyDailyClaimLimit, "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := s.GetInt(KeyDailyClaimLimit, 0); got != 5 {
		t.Errorf("daily_claim_limit = %d, want 5", got)
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if all[KeyDailyClaimLimit] != "5" {
		t.Errorf("get all missing update: %v", all)
	}
}

func TestSettingsGetIntFallback(t *testing.T) {
	db := setupTestDB(t)
	s := NewSettingsStore(db)

	if got := s.GetInt("missing_key", 7); got != 7 {
		t.Errorf("fallback = %d, want 7", got)
	}
	s.Set("bad_int", "nope")
	if got := s.GetInt("bad_int", 9); got != 9 {
		t.Errorf("malformed fallback = %d, want 9", got)
	}
}
