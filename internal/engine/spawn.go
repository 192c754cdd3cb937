package engine

import (
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/store"
	"github.com/dukerupert/taskwheel/internal/task"
)

// spawnChildren creates one follow-up instance per active child template of
// the completed one, assigned directly to whoever finished the parent. A
// child with a delay comes due that many hours out; zero means immediately.
func (e *Engine) spawnChildren(parent *model.TaskTemplate, inst *model.TaskInstance, contributorIDs []int64, now time.Time) error {
	children, err := e.templates.ListChildren(parent.ID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	completer := e.completerOf(inst, contributorIDs)

	for i := range children {
		child := &children[i]
		if !child.Active {
			continue
		}

		dueAt := now.Add(time.Duration(child.SpawnDelayHours) * time.Hour)

		status := task.StatusAssigned
		if completer == nil {
			status = task.StatusPool
		}

		spawned, err := e.instances.Create(store.InstanceParams{
			TemplateID:   child.ID,
			DueAt:        dueAt,
			DistributeAt: dueAt,
			Status:       status,
			Assignee:     completer,
			Points:       child.Points,
			SpawnedFrom:  &inst.ID,
		})
		if err != nil {
			return err
		}
		if completer != nil {
			assignedAt := now
			spawned.AssignedAt = &assignedAt
			if err := e.instances.SaveState(spawned); err != nil {
				return err
			}
		}

		e.logger.Info("child instance spawned",
			"instance_id", spawned.ID, "template_id", child.ID,
			"parent_instance_id", inst.ID, "due_at", dueAt, "assignee", completer)
		e.notify(Event{Type: EventCreated, InstanceID: spawned.ID, TemplateID: child.ID, PersonID: completer})
	}
	return nil
}
