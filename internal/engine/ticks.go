package engine

import (
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/store"
	"github.com/dukerupert/taskwheel/internal/task"
)

// CreateDueInstances materializes one instance per active template due on
// the given day. An existing same-day instance (any status) or an open
// instance from an earlier cycle suppresses creation: an orphaned open
// instance visibly blocks the next cycle rather than silently piling up.
// Per-template failures are logged and skipped; the tick continues.
func (e *Engine) CreateDueInstances(date time.Time) ([]int64, error) {
	cfg := e.config()
	day := recurrence.StartOfDay(date)

	templates, err := e.templates.ListActive()
	if err != nil {
		return nil, err
	}

	var created []int64
	for i := range templates {
		tmpl := &templates[i]
		if tmpl.ParentID != nil {
			continue // children materialize only when their parent completes
		}
		inst, err := e.createIfDue(tmpl, day, cfg)
		if err != nil {
			e.logger.Error("create due instance", "template_id", tmpl.ID, "error", err)
			continue
		}
		if inst != nil {
			created = append(created, inst.ID)
		}
	}
	return created, nil
}

// createIfDue creates the template's instance for the day when the cadence
// fires, returning nil when nothing is due or an instance already covers
// the cycle.
func (e *Engine) createIfDue(tmpl *model.TaskTemplate, day time.Time, cfg Config) (*model.TaskInstance, error) {
	due, err := e.dueOn(tmpl, day)
	if err != nil || !due {
		return nil, err
	}

	if exists, err := e.instances.ExistsForDay(tmpl.ID, day, day.AddDate(0, 0, 1)); err != nil {
		return nil, err
	} else if exists {
		return nil, nil
	}
	if open, err := e.instances.OpenForTemplate(tmpl.ID); err != nil {
		return nil, err
	} else if open != nil {
		e.logger.Warn("open instance blocks new cycle",
			"template_id", tmpl.ID, "open_instance_id", open.ID, "open_due_at", open.DueAt)
		return nil, nil
	}

	dueAt := day.AddDate(0, 0, 1) // due by end of the day
	distributeAt := day.Add(e.distributionOffset(tmpl, cfg))

	status := task.StatusPool
	var assignee *int64
	if !tmpl.IsPool && tmpl.AssignedTo != nil {
		status = task.StatusAssigned
		assignee = tmpl.AssignedTo
	}

	inst, err := e.instances.Create(store.InstanceParams{
		TemplateID:   tmpl.ID,
		DueAt:        dueAt,
		DistributeAt: distributeAt,
		Status:       status,
		Assignee:     assignee,
		Points:       tmpl.Points,
	})
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		assignedAt := day
		inst.AssignedAt = &assignedAt
		if err := e.instances.SaveState(inst); err != nil {
			return nil, err
		}
	}

	e.logger.Info("instance created", "instance_id", inst.ID, "template_id", tmpl.ID, "due_at", dueAt, "status", status)
	e.notify(Event{Type: EventCreated, InstanceID: inst.ID, TemplateID: tmpl.ID, PersonID: assignee})
	return inst, nil
}

// dueOn evaluates the template's cadence for the day. Rules were validated
// at save time; a parse failure here is a data bug worth surfacing, not a
// fallback case.
func (e *Engine) dueOn(tmpl *model.TaskTemplate, day time.Time) (bool, error) {
	rule, err := recurrence.Parse(tmpl.RecurrenceRule)
	if err != nil {
		return false, err
	}

	if tmpl.ShiftOnLate && rule.Freq == recurrence.Daily {
		last, err := e.instances.LastCompletedDue(tmpl.ID)
		if err != nil {
			return false, err
		}
		if last != nil && last.CompletedAt != nil {
			next := recurrence.NextAfterCompletion(rule, tmpl.CreatedAt, last.DueAt.AddDate(0, 0, -1), *last.CompletedAt)
			return !next.IsZero() && !day.Before(next), nil
		}
	}

	return recurrence.OccursOn(rule, tmpl.CreatedAt, day), nil
}

// distributionOffset resolves the instance's distribution time of day:
// template override first, then the configured default.
func (e *Engine) distributionOffset(tmpl *model.TaskTemplate, cfg Config) time.Duration {
	if tmpl.DistributionTime != "" {
		if d, err := parseClock(tmpl.DistributionTime); err == nil {
			return d
		}
	}
	d, err := parseClock(cfg.DistributionTime)
	if err != nil {
		d, _ = parseClock(defaultConfig.DistributionTime)
	}
	return d
}

// MarkOverdueInstances flags open instances past their due timestamp.
// Overdue is a flag, not a status: the instance stays claimable/completable.
func (e *Engine) MarkOverdueInstances(now time.Time) (int, error) {
	candidates, err := e.instances.ListOverdueCandidates(now)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range candidates {
		inst := &candidates[i]
		inst.Overdue = true
		if err := e.instances.SaveState(inst); err != nil {
			e.logger.Error("mark overdue", "instance_id", inst.ID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

// ResetDailyCounters zeroes every person's claim and auto tallies. Run once
// per midnight tick.
func (e *Engine) ResetDailyCounters() error {
	return e.persons.ResetDailyCounters()
}

// RunDistribution assigns every distributable instance of an undesirable
// template whose distribution time has passed, retrying blocked instances.
// Returns the ids of instances whose state changed. One instance's failure
// never aborts the batch.
func (e *Engine) RunDistribution(now time.Time) ([]int64, error) {
	distributable, err := e.instances.ListDistributable(now)
	if err != nil {
		return nil, err
	}

	var touched []int64
	for i := range distributable {
		inst := &distributable[i]
		changed, err := e.distributeOne(inst.ID, now)
		if err != nil {
			e.logger.Error("distribute instance", "instance_id", inst.ID, "error", err)
			continue
		}
		if changed {
			touched = append(touched, inst.ID)
		}
	}
	return touched, nil
}

// distributeOne runs the rotation assigner for one instance under its lock,
// re-reading state in case a claim won the race first.
func (e *Engine) distributeOne(instanceID int64, now time.Time) (bool, error) {
	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return false, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return false, ErrNotFound
	}
	if inst.Status != string(task.StatusPool) && inst.Status != string(task.StatusBlocked) {
		return false, nil // claimed or resolved since listing
	}

	tmpl, err := e.templates.GetByID(inst.TemplateID)
	if err != nil {
		return false, err
	}
	if tmpl == nil || !tmpl.IsUndesirable || !tmpl.Active {
		return false, nil
	}

	before := inst.Status + "/" + inst.Reason
	if err := e.assignByRotation(inst, tmpl, now); err != nil {
		return false, err
	}
	return inst.Status+"/"+inst.Reason != before, nil
}

// TakeWeeklySnapshot captures each point-eligible person's period balance,
// decides whether the period was perfect (nothing of theirs went overdue),
// and moves the streak counter. Per-person failures are logged and skipped.
func (e *Engine) TakeWeeklySnapshot(periodEnd time.Time) ([]model.Snapshot, error) {
	end := recurrence.StartOfDay(periodEnd)
	start := end.AddDate(0, 0, -7)
	periodKey := recurrence.DateKey(end)

	people, err := e.persons.ListPointsEligible()
	if err != nil {
		return nil, err
	}

	var taken []model.Snapshot
	for _, p := range people {
		if existing, err := e.snapshots.GetForPeriod(p.ID, periodKey); err != nil {
			e.logger.Error("check snapshot", "person_id", p.ID, "error", err)
			continue
		} else if existing != nil {
			continue // tick re-run; already captured
		}

		balance, err := e.ledger.BalanceSince(p.ID, start)
		if err != nil {
			e.logger.Error("snapshot balance", "person_id", p.ID, "error", err)
			continue
		}
		overdue, err := e.instances.AnyOverdueInPeriod(p.ID, start, end)
		if err != nil {
			e.logger.Error("snapshot overdue check", "person_id", p.ID, "error", err)
			continue
		}

		perfect := !overdue
		streak := 0
		if perfect {
			streak = p.Streak + 1
		}
		if err := e.persons.SetStreak(p.ID, streak); err != nil {
			e.logger.Error("snapshot streak", "person_id", p.ID, "error", err)
			continue
		}

		snap, err := e.snapshots.Create(p.ID, periodKey, balance, perfect, streak)
		if err != nil {
			e.logger.Error("create snapshot", "person_id", p.ID, "error", err)
			continue
		}
		taken = append(taken, *snap)
		e.logger.Info("snapshot taken", "person_id", p.ID, "period_end", periodKey, "perfect", perfect, "streak", streak)
	}
	return taken, nil
}

// OverrideStreak lets an administrator force a person's streak. The action
// itself is logged.
func (e *Engine) OverrideStreak(personID int64, streak int, actingAdminID int64) error {
	if streak < 0 {
		return validationErr("streak", "must not be negative")
	}
	if err := e.persons.SetStreak(personID, streak); err != nil {
		return err
	}
	e.logger.Info("streak overridden", "person_id", personID, "streak", streak, "admin_id", actingAdminID)
	return nil
}

// AdjustBalance appends a manual ledger adjustment for a person.
func (e *Engine) AdjustBalance(personID int64, deltaHundredths int64, note string, actingAdminID int64) error {
	if err := e.ledger.Adjust(personID, deltaHundredths, note); err != nil {
		return err
	}
	e.logger.Info("balance adjusted", "person_id", personID, "delta_hundredths", deltaHundredths, "admin_id", actingAdminID)
	return nil
}

// ResetBalance zeroes a person's balance with a single reset ledger entry.
// The award history stays; only the running total returns to zero.
func (e *Engine) ResetBalance(personID int64, actingAdminID int64) error {
	p, err := e.persons.GetByID(personID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}
	if err := e.ledger.Reset(personID, "balance reset"); err != nil {
		return err
	}
	e.logger.Info("balance reset", "person_id", personID, "admin_id", actingAdminID)
	return nil
}
