package store

import (
	"testing"
	"time"

	"github.com/dukerupert/taskwheel/internal/task"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestInstanceCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	tmpl := seedTemplate(t, db, "Dishes", nil)
	inst := seedInstance(t, db, tmpl.ID, date(2026, 8, 30), task.StatusPool)

	got, err := s.GetByID(inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected instance, got nil")
	}
	if got.Status != string(task.StatusPool) {
		t.Errorf("status = %q, want pool", got.Status)
	}
	if got.Points != 500 {
		t.Errorf("points = %d, want snapshotted 500", got.Points)
	}
	if got.Assignee != nil {
		t.Error("expected no assignee")
	}
}

func TestInstanceSaveStateRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	tmpl := seedTemplate(t, db, "Dishes", nil)
	alice := seedPerson(t, db, "Alice")
	inst := seedInstance(t, db, tmpl.ID, date(2026, 8, 30), task.StatusPool)

	assignedAt := date(2026, 8, 29).Add(9 * time.Hour)
	inst.Status = string(task.StatusAssigned)
	inst.Assignee = &alice.ID
	inst.AutoAssigned = true
	inst.AssignedAt = &assignedAt
	inst.PriorStatus = string(task.StatusPool)
	inst.Overdue = true
	if err := s.SaveState(inst); err != nil {
		t.Fatalf("save state: %v", err)
	}

	got, _ := s.GetByID(inst.ID)
	if got.Status != string(task.StatusAssigned) {
		t.Errorf("status = %q, want assigned", got.Status)
	}
	if got.Assignee == nil || *got.Assignee != alice.ID {
		t.Errorf("assignee = %v, want %d", got.Assignee, alice.ID)
	}
	if !got.AutoAssigned || !got.Overdue {
		t.Errorf("flags not persisted: auto=%v overdue=%v", got.AutoAssigned, got.Overdue)
	}
	if got.AssignedAt == nil || !got.AssignedAt.Equal(assignedAt) {
		t.Errorf("assigned_at = %v, want %v", got.AssignedAt, assignedAt)
	}
	if got.PriorStatus != string(task.StatusPool) {
		t.Errorf("prior_status = %q, want pool", got.PriorStatus)
	}
}

func TestInstanceOpenForTemplate(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)
	tmpl := seedTemplate(t, db, "Dishes", nil)

	open, err := s.OpenForTemplate(tmpl.ID)
	if err != nil {
		t.Fatalf("open for template: %v", err)
	}
	if open != nil {
		t.Fatal("expected no open instance yet")
	}

	done := seedInstance(t, db, tmpl.ID, date(2026, 8, 28), task.StatusCompleted)
	_ = done
	inst := seedInstance(t, db, tmpl.ID, date(2026, 8, 30), task.StatusPool)

	open, err = s.OpenForTemplate(tmpl.ID)
	if err != nil {
		t.Fatalf("open for template: %v", err)
	}
	if open == nil || open.ID != inst.ID {
		t.Errorf("open = %v, want instance %d", open, inst.ID)
	}
}

func TestInstanceExistsForDay(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)
	tmpl := seedTemplate(t, db, "Dishes", nil)

	// Due at the midnight ending Aug 30. A completed same-day instance
	// still counts: the cycle already ran.
	seedInstance(t, db, tmpl.ID, date(2026, 8, 31), task.StatusCompleted)

	exists, err := s.ExistsForDay(tmpl.ID, date(2026, 8, 30), date(2026, 8, 31))
	if err != nil {
		t.Fatalf("exists for day: %v", err)
	}
	if !exists {
		t.Error("expected exists = true for covered day")
	}

	exists, _ = s.ExistsForDay(tmpl.ID, date(2026, 8, 31), date(2026, 9, 1))
	if exists {
		t.Error("expected exists = false for next day")
	}
}

func TestInstanceListDistributable(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	undesirable := seedTemplate(t, db, "Trash", func(p *TemplateParams) { p.IsUndesirable = true })
	plain := seedTemplate(t, db, "Dishes", nil)

	now := date(2026, 8, 30).Add(9 * time.Hour)

	// Past distribution time, undesirable, pool: distributable.
	due := seedInstance(t, db, undesirable.ID, date(2026, 8, 31), task.StatusPool)
	// Same but already assigned: not distributable.
	held := seedInstance(t, db, undesirable.ID, date(2026, 8, 31), task.StatusAssigned)
	// Blocked undesirable: retried.
	blocked := seedInstance(t, db, undesirable.ID, date(2026, 8, 31), task.StatusBlocked)
	// Ordinary pool template: never auto-distributed.
	seedInstance(t, db, plain.ID, date(2026, 8, 31), task.StatusPool)
	// Distribution time still in the future.
	future, err := s.Create(InstanceParams{
		TemplateID: undesirable.ID, DueAt: date(2026, 9, 1),
		DistributeAt: now.Add(2 * time.Hour), Status: task.StatusPool, Points: 500,
	})
	if err != nil {
		t.Fatalf("create future instance: %v", err)
	}

	got, err := s.ListDistributable(now)
	if err != nil {
		t.Fatalf("list distributable: %v", err)
	}

	ids := map[int64]bool{}
	for _, i := range got {
		ids[i.ID] = true
	}
	if !ids[due.ID] || !ids[blocked.ID] {
		t.Errorf("missing distributable instances: got %v", ids)
	}
	if ids[held.ID] || ids[future.ID] {
		t.Errorf("non-distributable instance listed: got %v", ids)
	}
	if len(got) != 2 {
		t.Errorf("listed %d instances, want 2", len(got))
	}
}

func TestInstanceListOpenHidesDeactivatedTemplates(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	active := seedTemplate(t, db, "Dishes", nil)
	retired := seedTemplate(t, db, "Trash", nil)
	keep := seedInstance(t, db, active.ID, date(2026, 8, 31), task.StatusPool)
	hide := seedInstance(t, db, retired.ID, date(2026, 8, 31), task.StatusPool)

	if err := NewTemplateStore(db).Deactivate(retired.ID); err != nil {
		t.Fatalf("deactivate template: %v", err)
	}

	got, err := s.ListOpen()
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	ids := map[int64]bool{}
	for _, i := range got {
		ids[i.ID] = true
	}
	if !ids[keep.ID] {
		t.Errorf("active template's instance %d missing from board", keep.ID)
	}
	if ids[hide.ID] {
		t.Errorf("open instance %d of deactivated template still listed", hide.ID)
	}
}

func TestInstanceDifficultHolders(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	difficult := seedTemplate(t, db, "Deep clean", func(p *TemplateParams) { p.IsDifficult = true })
	easy := seedTemplate(t, db, "Dishes", nil)
	alice := seedPerson(t, db, "Alice")
	bob := seedPerson(t, db, "Bob")

	hard := seedInstance(t, db, difficult.ID, date(2026, 8, 30), task.StatusPool)
	hard.Status = string(task.StatusAssigned)
	hard.Assignee = &alice.ID
	if err := s.SaveState(hard); err != nil {
		t.Fatalf("save: %v", err)
	}

	soft := seedInstance(t, db, easy.ID, date(2026, 8, 30), task.StatusPool)
	soft.Status = string(task.StatusAssigned)
	soft.Assignee = &bob.ID
	if err := s.SaveState(soft); err != nil {
		t.Fatalf("save: %v", err)
	}

	holders, err := s.DifficultHolders(date(2026, 8, 29), date(2026, 8, 31))
	if err != nil {
		t.Fatalf("difficult holders: %v", err)
	}
	if !holders[alice.ID] {
		t.Error("alice should hold a difficult task")
	}
	if holders[bob.ID] {
		t.Error("bob holds only an easy task")
	}
}

func TestInstanceOverdueQueries(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)

	tmpl := seedTemplate(t, db, "Dishes", nil)
	alice := seedPerson(t, db, "Alice")

	inst := seedInstance(t, db, tmpl.ID, date(2026, 8, 28), task.StatusPool)
	inst.Status = string(task.StatusAssigned)
	inst.Assignee = &alice.ID
	if err := s.SaveState(inst); err != nil {
		t.Fatalf("save: %v", err)
	}

	now := date(2026, 8, 29).Add(time.Hour)
	candidates, err := s.ListOverdueCandidates(now)
	if err != nil {
		t.Fatalf("overdue candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != inst.ID {
		t.Fatalf("candidates = %v, want [%d]", candidates, inst.ID)
	}

	candidates[0].Overdue = true
	if err := s.SaveState(&candidates[0]); err != nil {
		t.Fatalf("save overdue: %v", err)
	}

	// Flagged instances drop out of the candidate list.
	candidates, _ = s.ListOverdueCandidates(now)
	if len(candidates) != 0 {
		t.Errorf("candidates after flag = %v, want none", candidates)
	}

	overdue, err := s.AnyOverdueInPeriod(alice.ID, date(2026, 8, 24), date(2026, 8, 31))
	if err != nil {
		t.Fatalf("any overdue: %v", err)
	}
	if !overdue {
		t.Error("expected overdue in period")
	}

	overdue, _ = s.AnyOverdueInPeriod(alice.ID, date(2026, 9, 1), date(2026, 9, 8))
	if overdue {
		t.Error("no overdue expected outside the period")
	}
}

func TestInstanceLastCompletedDue(t *testing.T) {
	db := setupTestDB(t)
	s := NewInstanceStore(db)
	tmpl := seedTemplate(t, db, "Dishes", nil)

	got, err := s.LastCompletedDue(tmpl.ID)
	if err != nil {
		t.Fatalf("last completed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil with no completions")
	}

	first := seedInstance(t, db, tmpl.ID, date(2026, 8, 27), task.StatusCompleted)
	firstDone := date(2026, 8, 27).Add(18 * time.Hour)
	first.CompletedAt = &firstDone
	if err := s.SaveState(first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := seedInstance(t, db, tmpl.ID, date(2026, 8, 28), task.StatusCompleted)
	secondDone := date(2026, 8, 29).Add(10 * time.Hour) // finished late
	second.CompletedAt = &secondDone
	if err := s.SaveState(second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = s.LastCompletedDue(tmpl.ID)
	if err != nil {
		t.Fatalf("last completed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("got %v, want most recent completion %d", got, second.ID)
	}
}
