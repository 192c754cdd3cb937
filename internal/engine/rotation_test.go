package engine

import (
	"testing"
	"time"

	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/store"
	"github.com/dukerupert/taskwheel/internal/task"
)

// addDistributable creates a pool instance whose distribution time has
// already passed.
func addDistributable(t *testing.T, env *testEnv, templateID int64) int64 {
	t.Helper()
	inst := env.addInstance(t, templateID, time.Now().AddDate(0, 0, 1), task.StatusPool, func(p *store.InstanceParams) {
		p.DistributeAt = time.Now().Add(-time.Hour)
	})
	return inst.ID
}

func TestRunDistributionAssignsFewestAutos(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addPerson(t, "Alice", nil)
	bob := env.addPerson(t, "Bob", nil)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := addDistributable(t, env, tmpl.ID)

	// Alice already drew one automatic assignment today.
	today := recurrence.DateKey(time.Now())
	if err := env.stores.Persons.BumpAuto(alice.ID, today); err != nil {
		t.Fatalf("bump auto: %v", err)
	}

	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	if len(touched) != 1 || touched[0] != id {
		t.Fatalf("touched = %v, want [%d]", touched, id)
	}

	inst := env.instance(t, id)
	if inst.Status != string(task.StatusAssigned) {
		t.Errorf("status = %s, want assigned", inst.Status)
	}
	if inst.Assignee == nil || *inst.Assignee != bob.ID {
		t.Errorf("assignee = %v, want %d (fewest autos)", inst.Assignee, bob.ID)
	}
	if !inst.AutoAssigned {
		t.Error("AutoAssigned not set")
	}

	rot, err := env.stores.Rotation.Get(tmpl.ID)
	if err != nil {
		t.Fatalf("rotation get: %v", err)
	}
	if rot.LastAssignedTo == nil || *rot.LastAssignedTo != bob.ID {
		t.Errorf("LastAssignedTo = %v, want %d", rot.LastAssignedTo, bob.ID)
	}

	autos, err := env.stores.Persons.AutoOn(bob.ID, today)
	if err != nil {
		t.Fatalf("AutoOn: %v", err)
	}
	if autos != 1 {
		t.Errorf("bob autos today = %d, want 1", autos)
	}
}

func TestRunDistributionExcludesLastCompleter(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addPerson(t, "Alice", nil)
	bob := env.addPerson(t, "Bob", nil)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := addDistributable(t, env, tmpl.ID)

	yesterday := recurrence.DateKey(time.Now().AddDate(0, 0, -1))
	if err := env.stores.Rotation.SetCompleted(tmpl.ID, alice.ID, yesterday); err != nil {
		t.Fatalf("set completed: %v", err)
	}

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	inst := env.instance(t, id)
	if inst.Assignee == nil || *inst.Assignee != bob.ID {
		t.Errorf("assignee = %v, want %d (last completer sits out)", inst.Assignee, bob.ID)
	}
}

func TestRunDistributionBlocksWhenOnlyCandidateCompleted(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addPerson(t, "Alice", nil)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := addDistributable(t, env, tmpl.ID)

	yesterday := recurrence.DateKey(time.Now().AddDate(0, 0, -1))
	if err := env.stores.Rotation.SetCompleted(tmpl.ID, alice.ID, yesterday); err != nil {
		t.Fatalf("set completed: %v", err)
	}

	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	if len(touched) != 1 {
		t.Fatalf("touched = %v, want the blocked instance", touched)
	}

	inst := env.instance(t, id)
	if inst.Status != string(task.StatusBlocked) {
		t.Errorf("status = %s, want blocked", inst.Status)
	}
	if inst.Reason != task.ReasonAllCompletedYesterday {
		t.Errorf("reason = %q, want %q", inst.Reason, task.ReasonAllCompletedYesterday)
	}
}

func TestRunDistributionBlocksNoEligible(t *testing.T) {
	env := newTestEnv(t)
	env.addPerson(t, "Alice", func(p *store.PersonParams) {
		p.ExcludedFromAuto = true
	})
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := addDistributable(t, env, tmpl.ID)

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	inst := env.instance(t, id)
	if inst.Status != string(task.StatusBlocked) || inst.Reason != task.ReasonNoEligibleUsers {
		t.Errorf("status/reason = %s/%q, want blocked/%q", inst.Status, inst.Reason, task.ReasonNoEligibleUsers)
	}
	if evs := env.notifier.byType(EventBlocked); len(evs) != 1 {
		t.Errorf("blocked events = %d, want 1", len(evs))
	}
}

func TestRunDistributionBlockedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	addDistributable(t, env, tmpl.ID)

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("second run touched = %v, want none for an unchanged block", touched)
	}
}

func TestRunDistributionRetriesBlocked(t *testing.T) {
	env := newTestEnv(t)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := addDistributable(t, env, tmpl.ID)

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if inst := env.instance(t, id); inst.Status != string(task.StatusBlocked) {
		t.Fatalf("status = %s, want blocked with nobody eligible", inst.Status)
	}

	// A later tick picks the instance back up once someone is eligible.
	alice := env.addPerson(t, "Alice", nil)
	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(touched) != 1 {
		t.Fatalf("touched = %v, want the retried instance", touched)
	}
	inst := env.instance(t, id)
	if inst.Status != string(task.StatusAssigned) || inst.Assignee == nil || *inst.Assignee != alice.ID {
		t.Errorf("status/assignee = %s/%v, want assigned/%d", inst.Status, inst.Assignee, alice.ID)
	}
	if inst.Reason != "" {
		t.Errorf("reason = %q, want cleared after assignment", inst.Reason)
	}
}

func TestRunDistributionHonorsRoster(t *testing.T) {
	env := newTestEnv(t)
	env.addPerson(t, "Alice", nil)
	bob := env.addPerson(t, "Bob", nil)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	if err := env.stores.Templates.SetRoster(tmpl.ID, []int64{bob.ID}); err != nil {
		t.Fatalf("set roster: %v", err)
	}
	id := addDistributable(t, env, tmpl.ID)

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	inst := env.instance(t, id)
	if inst.Assignee == nil || *inst.Assignee != bob.ID {
		t.Errorf("assignee = %v, want roster member %d", inst.Assignee, bob.ID)
	}
}

func TestRunDistributionDifficultConflict(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addPerson(t, "Alice", nil)
	tmpl := env.addTemplate(t, "Deep clean", func(p *store.TemplateParams) {
		p.IsUndesirable = true
		p.IsDifficult = true
	})

	due := time.Now().AddDate(0, 0, 1)
	// Alice already holds a difficult task due the same day.
	env.addInstance(t, tmpl.ID, due, task.StatusAssigned, func(p *store.InstanceParams) {
		p.Assignee = &alice.ID
	})
	second := env.addInstance(t, tmpl.ID, due, task.StatusPool, func(p *store.InstanceParams) {
		p.DistributeAt = time.Now().Add(-time.Hour)
	})

	if _, err := env.engine.RunDistribution(time.Now()); err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	inst := env.instance(t, second.ID)
	if inst.Status != string(task.StatusBlocked) || inst.Reason != task.ReasonDifficultConflict {
		t.Errorf("status/reason = %s/%q, want blocked/%q", inst.Status, inst.Reason, task.ReasonDifficultConflict)
	}
}

func TestRunDistributionIgnoresDesirableAndClaimed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addPerson(t, "Alice", nil)

	plain := env.addTemplate(t, "Water plants", nil)
	env.addInstance(t, plain.ID, time.Now().AddDate(0, 0, 1), task.StatusPool, func(p *store.InstanceParams) {
		p.DistributeAt = time.Now().Add(-time.Hour)
	})

	rotated := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	env.addInstance(t, rotated.ID, time.Now().AddDate(0, 0, 1), task.StatusAssigned, func(p *store.InstanceParams) {
		p.DistributeAt = time.Now().Add(-time.Hour)
		p.Assignee = &alice.ID
	})

	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("touched = %v, want none", touched)
	}
}

func TestRunDistributionSkipsFutureDistributeAt(t *testing.T) {
	env := newTestEnv(t)
	env.addPerson(t, "Alice", nil)
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})
	id := env.addInstance(t, tmpl.ID, time.Now().AddDate(0, 0, 1), task.StatusPool, func(p *store.InstanceParams) {
		p.DistributeAt = time.Now().Add(time.Hour)
	}).ID

	touched, err := env.engine.RunDistribution(time.Now())
	if err != nil {
		t.Fatalf("RunDistribution: %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("touched = %v, want none before distribution time", touched)
	}
	if inst := env.instance(t, id); inst.Status != string(task.StatusPool) {
		t.Errorf("status = %s, want still pool", inst.Status)
	}
}

func TestRunDistributionFairnessBound(t *testing.T) {
	env := newTestEnv(t)
	people := []int64{
		env.addPerson(t, "Alice", nil).ID,
		env.addPerson(t, "Bob", nil).ID,
		env.addPerson(t, "Carol", nil).ID,
	}
	tmpl := env.addTemplate(t, "Trash", func(p *store.TemplateParams) {
		p.IsUndesirable = true
	})

	// Twelve assignment cycles across three candidates: nobody may draw
	// more than ceil(12/3)+1 automatic assignments.
	const cycles = 12
	got := map[int64]int{}
	for i := 0; i < cycles; i++ {
		id := addDistributable(t, env, tmpl.ID)
		touched, err := env.engine.RunDistribution(time.Now())
		if err != nil {
			t.Fatalf("cycle %d: RunDistribution: %v", i, err)
		}
		if len(touched) != 1 {
			t.Fatalf("cycle %d: touched = %v, want one instance", i, touched)
		}
		inst := env.instance(t, id)
		if inst.Assignee == nil {
			t.Fatalf("cycle %d: instance unassigned", i)
		}
		got[*inst.Assignee]++
	}

	bound := cycles/len(people) + 1 // ceil is exact here, +1 slack
	total := 0
	for _, id := range people {
		if got[id] > bound {
			t.Errorf("person %d drew %d assignments, bound %d", id, got[id], bound)
		}
		total += got[id]
	}
	if total != cycles {
		t.Errorf("assignments accounted = %d, want %d", total, cycles)
	}
}
