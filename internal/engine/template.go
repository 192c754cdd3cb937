package engine

import (
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/recurrence"
	"github.com/dukerupert/taskwheel/internal/store"
)

// TemplateInput carries the caller's template fields plus the eligibility
// roster for pool templates.
type TemplateInput struct {
	Name             string
	Description      string
	Points           int
	RecurrenceRule   string
	IsPool           bool
	AssignedTo       *int64
	IsUndesirable    bool
	IsDifficult      bool
	ShiftOnLate      bool
	DistributionTime string
	ParentID         *int64
	SpawnDelayHours  int
	Roster           []int64
}

// CreateTemplate validates and persists a new template. If the cadence
// fires today, today's instance is created before returning so a new chore
// appears on the board immediately instead of waiting for the next tick.
func (e *Engine) CreateTemplate(in TemplateInput) (*model.TaskTemplate, error) {
	if err := e.validateTemplate(in, 0); err != nil {
		return nil, err
	}

	tmpl, err := e.templates.Create(templateParams(in))
	if err != nil {
		return nil, err
	}
	if len(in.Roster) > 0 {
		if err := e.templates.SetRoster(tmpl.ID, in.Roster); err != nil {
			return nil, err
		}
	}
	e.logger.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name)

	// Child templates only materialize when their parent completes.
	if tmpl.ParentID == nil {
		day := recurrence.StartOfDay(e.now())
		if _, err := e.createIfDue(tmpl, day, e.config()); err != nil {
			e.logger.Error("create instance for new template", "template_id", tmpl.ID, "error", err)
		}
	}
	return tmpl, nil
}

// UpdateTemplate revalidates and saves. Open instances keep the point value
// snapshotted at creation; only future instances see the change.
func (e *Engine) UpdateTemplate(id int64, in TemplateInput) (*model.TaskTemplate, error) {
	existing, err := e.templates.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if err := e.validateTemplate(in, id); err != nil {
		return nil, err
	}

	tmpl, err := e.templates.Update(id, templateParams(in))
	if err != nil {
		return nil, err
	}
	if err := e.templates.SetRoster(id, in.Roster); err != nil {
		return nil, err
	}
	e.logger.Info("template updated", "template_id", id, "name", tmpl.Name)
	return tmpl, nil
}

// DeactivateTemplate soft-deletes. Open instances of the template survive
// until resolved or skipped.
func (e *Engine) DeactivateTemplate(id int64) error {
	tmpl, err := e.templates.GetByID(id)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return ErrNotFound
	}
	if err := e.templates.Deactivate(id); err != nil {
		return err
	}
	e.logger.Info("template deactivated", "template_id", id, "name", tmpl.Name)
	return nil
}

func (e *Engine) ReactivateTemplate(id int64) error {
	tmpl, err := e.templates.GetByID(id)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return ErrNotFound
	}
	return e.templates.Reactivate(id)
}

// validateTemplate rejects bad input before anything touches the database.
// selfID is nonzero on update so the cycle walk can catch a template being
// re-parented under its own descendant.
func (e *Engine) validateTemplate(in TemplateInput, selfID int64) error {
	if in.Name == "" {
		return validationErr("name", "must not be empty")
	}
	if in.Points < 0 {
		return validationErr("points", "must not be negative")
	}
	if in.IsPool == (in.AssignedTo != nil) {
		return validationErr("assigned_to", "exactly one of pool or fixed assignee must be set")
	}
	if in.SpawnDelayHours < 0 {
		return validationErr("spawn_delay_hours", "must not be negative")
	}
	if in.SpawnDelayHours > 0 && in.ParentID == nil {
		return validationErr("spawn_delay_hours", "requires a parent template")
	}
	if in.DistributionTime != "" {
		if _, err := parseClock(in.DistributionTime); err != nil {
			return validationErr("distribution_time", "must be HH:MM")
		}
	}

	if err := recurrence.Validate(in.RecurrenceRule, e.now()); err != nil {
		return validationErr("recurrence_rule", "%s", err.Error())
	}

	if in.AssignedTo != nil {
		p, err := e.persons.GetByID(*in.AssignedTo)
		if err != nil {
			return err
		}
		if p == nil || !p.Active {
			return validationErr("assigned_to", "person not found or inactive")
		}
	}

	if in.ParentID != nil {
		if selfID != 0 && *in.ParentID == selfID {
			return validationErr("parent_id", "template cannot be its own parent")
		}
		if err := e.checkAncestorCycle(*in.ParentID, selfID); err != nil {
			return err
		}
	}
	return nil
}

// checkAncestorCycle walks the parent chain from the proposed parent up to
// the root. Hitting selfID means the edge would close a loop; a visited set
// guards against pre-existing corruption making the walk spin.
func (e *Engine) checkAncestorCycle(parentID, selfID int64) error {
	visited := map[int64]bool{}
	cur := parentID
	for {
		if selfID != 0 && cur == selfID {
			return validationErr("parent_id", "would create a dependency cycle")
		}
		if visited[cur] {
			return validationErr("parent_id", "dependency chain already contains a cycle")
		}
		visited[cur] = true

		tmpl, err := e.templates.GetByID(cur)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return validationErr("parent_id", "parent template not found")
		}
		if tmpl.ParentID == nil {
			return nil
		}
		cur = *tmpl.ParentID
	}
}

func templateParams(in TemplateInput) store.TemplateParams {
	return store.TemplateParams{
		Name:             in.Name,
		Description:      in.Description,
		Points:           in.Points,
		RecurrenceRule:   in.RecurrenceRule,
		IsPool:           in.IsPool,
		AssignedTo:       in.AssignedTo,
		IsUndesirable:    in.IsUndesirable,
		IsDifficult:      in.IsDifficult,
		ShiftOnLate:      in.ShiftOnLate,
		DistributionTime: in.DistributionTime,
		ParentID:         in.ParentID,
		SpawnDelayHours:  in.SpawnDelayHours,
	}
}
