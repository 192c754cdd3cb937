package store

import "testing"

func TestSnapshotCreateAndGetForPeriod(t *testing.T) {
	db := setupTestDB(t)
	s := NewSnapshotStore(db)
	alice := seedPerson(t, db, "Alice")

	snap, err := s.Create(alice.ID, "2026-08-31", 1250, true, 3)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if snap.BalanceHundredths != 1250 || !snap.Perfect || snap.Streak != 3 {
		t.Errorf("snapshot = %+v", snap)
	}

	got, err := s.GetForPeriod(alice.ID, "2026-08-31")
	if err != nil {
		t.Fatalf("get for period: %v", err)
	}
	if got == nil || got.ID != snap.ID {
		t.Errorf("got %v, want snapshot %d", got, snap.ID)
	}

	// Same person, same period: the unique index rejects the duplicate.
	if _, err := s.Create(alice.ID, "2026-08-31", 0, false, 0); err == nil {
		t.Error("expected duplicate period insert to fail")
	}
}

func TestSnapshotListForPerson(t *testing.T) {
	db := setupTestDB(t)
	s := NewSnapshotStore(db)
	alice := seedPerson(t, db, "Alice")

	s.Create(alice.ID, "2026-08-24", 1000, true, 1)
	s.Create(alice.ID, "2026-08-31", 900, false, 0)

	snaps, err := s.ListForPerson(alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if snaps[0].PeriodEnd != "2026-08-31" {
		t.Errorf("newest first: got %s", snaps[0].PeriodEnd)
	}
}
