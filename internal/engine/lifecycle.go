package engine

import (
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/task"
)

// Claim warnings. Non-blocking: the claim succeeds, the caller decides
// whether to surface the warning.
const WarnSecondDifficult = "already holding a difficult task today"

// Claim moves a pool instance to the claimant. Exactly one of two racing
// claimants wins; the loser gets ErrConflict. The warning return is set when
// the claimant voluntarily takes a second difficult task in one day — that
// only blocks automatic assignment, never a self-claim.
func (e *Engine) Claim(instanceID, personID int64) (*model.TaskInstance, string, error) {
	cfg := e.config()
	now := e.now()
	today := recurrence.DateKey(now)

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, "", err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, "", err
	}
	if inst == nil {
		return nil, "", ErrNotFound
	}
	if inst.Status != string(task.StatusPool) {
		return nil, "", fmt.Errorf("claim instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}

	person, err := e.persons.GetByID(personID)
	if err != nil {
		return nil, "", err
	}
	if person == nil || !person.Active {
		return nil, "", ErrNotFound
	}

	claims, err := e.persons.ClaimsOn(personID, today)
	if err != nil {
		return nil, "", err
	}
	if claims >= cfg.DailyClaimLimit {
		return nil, "", ErrLimitExceeded
	}

	warning := ""
	tmpl, err := e.templates.GetByID(inst.TemplateID)
	if err != nil {
		return nil, "", err
	}
	if tmpl != nil && tmpl.IsDifficult {
		dayStart := recurrence.StartOfDay(inst.DueAt)
		holders, err := e.instances.DifficultHolders(dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, "", err
		}
		if holders[personID] {
			warning = WarnSecondDifficult
		}
	}

	inst.Status = string(task.StatusAssigned)
	inst.Assignee = &personID
	inst.AutoAssigned = false
	assignedAt := now
	inst.AssignedAt = &assignedAt
	if err := e.instances.SaveState(inst); err != nil {
		return nil, "", err
	}
	if _, err := e.persons.BumpClaims(personID, today); err != nil {
		return nil, "", err
	}

	e.logger.Info("instance claimed", "instance_id", instanceID, "person_id", personID)
	e.notify(Event{Type: EventClaimed, InstanceID: instanceID, TemplateID: inst.TemplateID, PersonID: &personID})
	return inst, warning, nil
}

// Unclaim returns a held instance to the pool. A same-day unclaim restores
// the claimant's daily claim allowance; older claims stay spent.
func (e *Engine) Unclaim(instanceID, personID int64) (*model.TaskInstance, error) {
	now := e.now()
	today := recurrence.DateKey(now)

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	if inst.Status != string(task.StatusAssigned) || inst.Assignee == nil || *inst.Assignee != personID {
		return nil, fmt.Errorf("unclaim instance %d: %w", instanceID, ErrConflict)
	}

	sameDay := inst.AssignedAt != nil && recurrence.DateKey(*inst.AssignedAt) == today
	wasAuto := inst.AutoAssigned

	inst.Status = string(task.StatusPool)
	inst.Assignee = nil
	inst.AssignedAt = nil
	inst.AutoAssigned = false
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	if sameDay {
		if wasAuto {
			if err := e.persons.ReleaseAuto(personID, today); err != nil {
				return nil, err
			}
		} else {
			if err := e.persons.ReleaseClaim(personID, today); err != nil {
				return nil, err
			}
		}
	}

	e.logger.Info("instance unclaimed", "instance_id", instanceID, "person_id", personID)
	e.notify(Event{Type: EventUnclaimed, InstanceID: instanceID, TemplateID: inst.TemplateID, PersonID: &personID})
	return inst, nil
}

// AssignManually places an instance on a person by administrator action.
// Manual assignment ignores the excluded-from-auto flag and the difficult
// constraint, and resolves blocked instances.
func (e *Engine) AssignManually(instanceID, personID int64) (*model.TaskInstance, error) {
	now := e.now()

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	from := task.Status(inst.Status)
	// completed -> assigned exists only as an undo restore path.
	if from.Terminal() || (!task.CanTransition(from, task.StatusAssigned) && from != task.StatusAssigned) {
		return nil, fmt.Errorf("assign instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}

	person, err := e.persons.GetByID(personID)
	if err != nil {
		return nil, err
	}
	if person == nil || !person.Active {
		return nil, ErrNotFound
	}

	inst.Status = string(task.StatusAssigned)
	inst.Assignee = &personID
	inst.AutoAssigned = false
	assignedAt := now
	inst.AssignedAt = &assignedAt
	inst.Reason = ""
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	e.logger.Info("instance manually assigned", "instance_id", instanceID, "person_id", personID)
	e.notify(Event{Type: EventAssigned, InstanceID: instanceID, TemplateID: inst.TemplateID, PersonID: &personID})
	return inst, nil
}

// Complete finishes an instance and awards its snapshotted points across the
// contributors. Completion is legal straight from the pool; no claim is
// required first.
func (e *Engine) Complete(instanceID int64, contributorIDs []int64) (*model.CompletionRecord, error) {
	now := e.now()
	today := recurrence.DateKey(now)

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	from := task.Status(inst.Status)
	if from != task.StatusPool && from != task.StatusAssigned {
		return nil, fmt.Errorf("complete instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}

	tmpl, err := e.templates.GetByID(inst.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, ErrNotFound
	}

	recipients, err := e.pointRecipients(tmpl, contributorIDs)
	if err != nil {
		return nil, err
	}

	completedBy := e.completerOf(inst, contributorIDs)
	shares := buildShares(inst.Points, recipients)
	completion, err := e.ledger.RecordCompletion(instanceID, now, completedBy, shares, tmpl.Name)
	if err != nil {
		return nil, err
	}

	inst.PriorStatus = inst.Status
	inst.PriorAssignee = inst.Assignee
	inst.Status = string(task.StatusCompleted)
	completedAt := now
	inst.CompletedAt = &completedAt
	inst.CompletionID = &completion.ID
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	if tmpl.IsUndesirable && completedBy != nil {
		if err := e.rotation.SetCompleted(tmpl.ID, *completedBy, today); err != nil {
			return nil, err
		}
	}

	if err := e.spawnChildren(tmpl, inst, contributorIDs, now); err != nil {
		// Children are best-effort: the completion stands either way.
		e.logger.Error("spawn children", "instance_id", instanceID, "error", err)
	}

	e.logger.Info("instance completed", "instance_id", instanceID, "completion_id", completion.ID, "recipients", len(recipients))
	e.notify(Event{Type: EventCompleted, InstanceID: instanceID, TemplateID: inst.TemplateID, PersonID: inst.PriorAssignee})
	return completion, nil
}

// pointRecipients filters contributors to point-eligible active persons,
// falling back to the template's configured eligible set so a completion
// with no creditable contributor still awards its value.
func (e *Engine) pointRecipients(tmpl *model.TaskTemplate, contributorIDs []int64) ([]int64, error) {
	var recipients []int64
	for _, id := range contributorIDs {
		p, err := e.persons.GetByID(id)
		if err != nil {
			return nil, err
		}
		if p != nil && p.Active && p.PointsEligible {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) > 0 {
		return recipients, nil
	}
	return e.awardFallback(tmpl)
}

// completerOf decides who "the completer" is for rotation exclusion and
// dependency spawning: the assignee when one exists, else the first
// contributor.
func (e *Engine) completerOf(inst *model.TaskInstance, contributorIDs []int64) *int64 {
	if inst.Assignee != nil {
		return inst.Assignee
	}
	if len(contributorIDs) > 0 {
		return &contributorIDs[0]
	}
	return nil
}

// Undo reverses a completion within the undo window: ledger reversal entries
// are appended (the originals stay), the instance returns to its prior
// status and assignee, and counters touched today are walked back. Counters
// from other days are never repaired.
func (e *Engine) Undo(completionID, actingAdminID int64) (*model.TaskInstance, error) {
	cfg := e.config()
	now := e.now()
	today := recurrence.DateKey(now)

	completion, err := e.ledger.GetCompletion(completionID)
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return nil, ErrNotFound
	}

	release, err := e.locks.acquire(completion.InstanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock.
	completion, err = e.ledger.GetCompletion(completionID)
	if err != nil {
		return nil, err
	}
	if completion.Undone {
		return nil, fmt.Errorf("completion %d already undone: %w", completionID, ErrConflict)
	}
	if now.Sub(completion.CompletedAt) > cfg.UndoWindow {
		return nil, ErrWindowExpired
	}

	inst, err := e.instances.GetByID(completion.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}

	if err := e.ledger.RecordUndo(completionID, actingAdminID, now); err != nil {
		return nil, err
	}

	prior := inst.PriorStatus
	if prior == "" {
		prior = string(task.StatusPool)
	}
	inst.Status = prior
	inst.Assignee = inst.PriorAssignee
	inst.CompletedAt = nil
	inst.CompletionID = nil
	inst.PriorStatus = ""
	inst.PriorAssignee = nil
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	// Walk back today's counters only; other days' fairness state is
	// never retroactively repaired.
	if inst.Assignee != nil && inst.AssignedAt != nil && recurrence.DateKey(*inst.AssignedAt) == today {
		if inst.AutoAssigned {
			if err := e.persons.ReleaseAuto(*inst.Assignee, today); err != nil {
				return nil, err
			}
		} else {
			if err := e.persons.ReleaseClaim(*inst.Assignee, today); err != nil {
				return nil, err
			}
		}
	}

	tmpl, err := e.templates.GetByID(inst.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl != nil && tmpl.IsUndesirable {
		rot, err := e.rotation.Get(tmpl.ID)
		if err != nil {
			return nil, err
		}
		// The record carries the credited completer; the shares may belong
		// to a fallback set and cannot stand in for them.
		by := completion.CompletedBy
		if rot.LastCompletedBy != nil && by != nil && *rot.LastCompletedBy == *by {
			if err := e.rotation.ClearCompleted(tmpl.ID); err != nil {
				return nil, err
			}
		}
	}

	e.logger.Info("completion undone", "completion_id", completionID, "instance_id", inst.ID, "admin_id", actingAdminID)
	e.notify(Event{Type: EventUndone, InstanceID: inst.ID, TemplateID: inst.TemplateID})
	return inst, nil
}

// Skip retires an open instance by administrator action: terminal, no
// points, no overdue penalty. Restorable via Unskip within the window.
func (e *Engine) Skip(instanceID, actingAdminID int64, reason string) (*model.TaskInstance, error) {
	now := e.now()

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	from := task.Status(inst.Status)
	if !task.CanTransition(from, task.StatusSkipped) {
		return nil, fmt.Errorf("skip instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}

	inst.PriorStatus = inst.Status
	inst.PriorAssignee = inst.Assignee
	inst.Status = string(task.StatusSkipped)
	inst.Assignee = nil
	skippedAt := now
	inst.SkippedAt = &skippedAt
	if reason != "" {
		inst.Reason = reason
	}
	inst.Overdue = false
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	e.logger.Info("instance skipped", "instance_id", instanceID, "admin_id", actingAdminID, "reason", reason)
	e.notify(Event{Type: EventSkipped, InstanceID: instanceID, TemplateID: inst.TemplateID, Detail: reason})
	return inst, nil
}

// Unskip restores a skipped instance to exactly its prior status and
// assignee, within the same bounded window as undo.
func (e *Engine) Unskip(instanceID, actingAdminID int64) (*model.TaskInstance, error) {
	cfg := e.config()
	now := e.now()

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	if inst.Status != string(task.StatusSkipped) {
		return nil, fmt.Errorf("unskip instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}
	if inst.SkippedAt == nil || now.Sub(*inst.SkippedAt) > cfg.UndoWindow {
		return nil, ErrWindowExpired
	}

	prior := inst.PriorStatus
	if prior == "" {
		prior = string(task.StatusPool)
	}
	inst.Status = prior
	inst.Assignee = inst.PriorAssignee
	inst.SkippedAt = nil
	inst.Reason = ""
	inst.PriorStatus = ""
	inst.PriorAssignee = nil
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	e.logger.Info("instance unskipped", "instance_id", instanceID, "admin_id", actingAdminID)
	e.notify(Event{Type: EventUnskipped, InstanceID: instanceID, TemplateID: inst.TemplateID})
	return inst, nil
}

// Reschedule moves an open instance's due and distribution timestamps.
func (e *Engine) Reschedule(instanceID int64, newDueAt, newDistributeAt time.Time) (*model.TaskInstance, error) {
	now := e.now()

	if newDueAt.IsZero() || newDistributeAt.IsZero() {
		return nil, validationErr("schedule", "due and distribution timestamps are required")
	}
	if newDistributeAt.After(newDueAt) {
		return nil, validationErr("schedule", "distribution time must not be after the due time")
	}

	release, err := e.locks.acquire(instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	if task.Status(inst.Status).Terminal() {
		return nil, fmt.Errorf("reschedule instance %d in status %s: %w", instanceID, inst.Status, ErrConflict)
	}

	inst.DueAt = newDueAt
	inst.DistributeAt = newDistributeAt
	if newDueAt.After(now) {
		inst.Overdue = false
	}
	if err := e.instances.SaveState(inst); err != nil {
		return nil, err
	}

	e.logger.Info("instance rescheduled", "instance_id", instanceID, "due_at", newDueAt)
	return inst, nil
}
