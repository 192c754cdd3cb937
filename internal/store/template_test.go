package store

import (
	"testing"
)

func TestTemplateCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	tmpl := seedTemplate(t, db, "Dishes", nil)
	if tmpl.Name != "Dishes" {
		t.Errorf("name = %q, want %q", tmpl.Name, "Dishes")
	}
	if !tmpl.Active {
		t.Error("new template should be active")
	}
	if !tmpl.IsPool {
		t.Error("expected pool template")
	}

	got, err := s.GetByID(tmpl.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.ID != tmpl.ID {
		t.Fatalf("got %v, want template %d", got, tmpl.ID)
	}
}

func TestTemplateGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	tmpl, err := s.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if tmpl != nil {
		t.Errorf("expected nil, got %+v", tmpl)
	}
}

func TestTemplateFixedAssignee(t *testing.T) {
	db := setupTestDB(t)
	alice := seedPerson(t, db, "Alice")

	tmpl := seedTemplate(t, db, "Feed cat", func(p *TemplateParams) {
		p.IsPool = false
		p.AssignedTo = &alice.ID
	})
	if tmpl.AssignedTo == nil || *tmpl.AssignedTo != alice.ID {
		t.Errorf("assigned_to = %v, want %d", tmpl.AssignedTo, alice.ID)
	}
}

func TestTemplateListActiveExcludesDeactivated(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	seedTemplate(t, db, "Dishes", nil)
	old := seedTemplate(t, db, "Old chore", nil)
	if err := s.Deactivate(old.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Dishes" {
		t.Errorf("active = %v, want just Dishes", active)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d templates, want 2", len(all))
	}

	if err := s.Reactivate(old.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	active, _ = s.ListActive()
	if len(active) != 2 {
		t.Errorf("after reactivate, active = %d templates, want 2", len(active))
	}
}

func TestTemplateListChildren(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	parent := seedTemplate(t, db, "Cook dinner", nil)
	child := seedTemplate(t, db, "Wash pots", func(p *TemplateParams) {
		p.ParentID = &parent.ID
		p.SpawnDelayHours = 1
	})

	children, err := s.ListChildren(parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("children = %v, want [%d]", children, child.ID)
	}
	if children[0].SpawnDelayHours != 1 {
		t.Errorf("spawn delay = %d, want 1", children[0].SpawnDelayHours)
	}

	// Deactivated children stop spawning.
	if err := s.Deactivate(child.ID); err != nil {
		t.Fatalf("deactivate child: %v", err)
	}
	children, _ = s.ListChildren(parent.ID)
	if len(children) != 0 {
		t.Errorf("children after deactivate = %v, want none", children)
	}
}

func TestTemplateRoster(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	alice := seedPerson(t, db, "Alice")
	bob := seedPerson(t, db, "Bob")
	tmpl := seedTemplate(t, db, "Dishes", nil)

	if err := s.SetRoster(tmpl.ID, []int64{alice.ID, bob.ID}); err != nil {
		t.Fatalf("set roster: %v", err)
	}
	roster, err := s.Roster(tmpl.ID)
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster = %v, want 2 entries", roster)
	}

	// Replacing the roster drops prior entries.
	if err := s.SetRoster(tmpl.ID, []int64{bob.ID}); err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	roster, _ = s.Roster(tmpl.ID)
	if len(roster) != 1 || roster[0] != bob.ID {
		t.Errorf("roster = %v, want [%d]", roster, bob.ID)
	}
}

func TestTemplateUpdate(t *testing.T) {
	db := setupTestDB(t)
	s := NewTemplateStore(db)

	tmpl := seedTemplate(t, db, "Dishes", nil)
	updated, err := s.Update(tmpl.ID, TemplateParams{
		Name:           "Dishes and counters",
		Points:         750,
		RecurrenceRule: "FREQ=DAILY;INTERVAL=2",
		IsPool:         true,
		IsUndesirable:  true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Dishes and counters" || updated.Points != 750 || !updated.IsUndesirable {
		t.Errorf("update not applied: %+v", updated)
	}
}
