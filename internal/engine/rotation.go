package engine

import (
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/task"
)

// assignByRotation places one distributable instance of an undesirable
// template, or records it blocked with a rationale. Runs inside the
// instance's lock slot; the fairness tally and rotation state mutate in the
// same critical section as the status transition.
func (e *Engine) assignByRotation(inst *model.TaskInstance, tmpl *model.TaskTemplate, now time.Time) error {
	today := recurrence.DateKey(now)

	candidates, err := e.eligibleFor(tmpl)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return e.block(inst, task.ReasonNoEligibleUsers)
	}

	// Whoever completed the previous cycle sits this one out. No fallback
	// to a repeat: an emptied set blocks instead.
	rot, err := e.rotation.Get(tmpl.ID)
	if err != nil {
		return err
	}
	if rot.LastCompletedBy != nil {
		filtered := candidates[:0]
		for _, p := range candidates {
			if p.ID != *rot.LastCompletedBy {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			return e.block(inst, task.ReasonAllCompletedYesterday)
		}
		candidates = filtered
	}

	// Difficult tasks: one automatic difficult assignment per person per day.
	if tmpl.IsDifficult {
		dayStart := recurrence.StartOfDay(inst.DueAt)
		holders, err := e.instances.DifficultHolders(dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		filtered := candidates[:0]
		for _, p := range candidates {
			if !holders[p.ID] {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			return e.block(inst, task.ReasonDifficultConflict)
		}
		candidates = filtered
	}

	chosen, err := e.pickFairest(candidates, today)
	if err != nil {
		return err
	}

	inst.Status = string(task.StatusAssigned)
	inst.Assignee = &chosen.ID
	inst.AutoAssigned = true
	assignedAt := now
	inst.AssignedAt = &assignedAt
	inst.Reason = ""
	if err := e.instances.SaveState(inst); err != nil {
		return err
	}

	if err := e.persons.BumpAuto(chosen.ID, today); err != nil {
		return err
	}
	if err := e.rotation.SetAssigned(tmpl.ID, chosen.ID, today); err != nil {
		return err
	}

	e.logger.Info("rotation assigned",
		"instance_id", inst.ID, "template_id", tmpl.ID, "person_id", chosen.ID)
	e.notify(Event{Type: EventAssigned, InstanceID: inst.ID, TemplateID: tmpl.ID, PersonID: &chosen.ID})
	return nil
}

// pickFairest selects the candidate with the fewest automatic assignments
// today, breaking ties uniformly at random so insertion order never biases
// the rotation.
func (e *Engine) pickFairest(candidates []model.Person, today string) (*model.Person, error) {
	best := -1
	var tied []model.Person
	for _, p := range candidates {
		n, err := e.persons.AutoOn(p.ID, today)
		if err != nil {
			return nil, fmt.Errorf("auto tally for %d: %w", p.ID, err)
		}
		switch {
		case best == -1 || n < best:
			best = n
			tied = tied[:0]
			tied = append(tied, p)
		case n == best:
			tied = append(tied, p)
		}
	}
	chosen := tied[e.pick(len(tied))]
	return &chosen, nil
}

// block parks the instance in the blocked state with a rationale. Blocked is
// an outcome, not an error: it stays visible to administrators and is
// retried on later distribution ticks.
func (e *Engine) block(inst *model.TaskInstance, reason string) error {
	if inst.Status == string(task.StatusBlocked) && inst.Reason == reason {
		return nil // already surfaced
	}
	inst.Status = string(task.StatusBlocked)
	inst.Reason = reason
	inst.Assignee = nil
	inst.AutoAssigned = false
	if err := e.instances.SaveState(inst); err != nil {
		return err
	}
	e.logger.Warn("assignment blocked", "instance_id", inst.ID, "template_id", inst.TemplateID, "reason", reason)
	e.notify(Event{Type: EventBlocked, InstanceID: inst.ID, TemplateID: inst.TemplateID, Detail: reason})
	return nil
}
