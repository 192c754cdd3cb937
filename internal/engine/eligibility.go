package engine

import (
	"fmt"

	"github.com/dukerupert/taskwheel/internal/model"
)

// eligibleFor resolves who may automatically receive the template: active
// assignable persons, intersected with the explicit roster when one is
// configured, minus anyone excluded from automatic assignment. The excluded
// flag never blocks manual assignment or self-claim; only this resolver
// honors it.
func (e *Engine) eligibleFor(tmpl *model.TaskTemplate) ([]model.Person, error) {
	assignable, err := e.persons.ListAssignable()
	if err != nil {
		return nil, fmt.Errorf("list assignable: %w", err)
	}

	roster, err := e.templates.Roster(tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	inRoster := make(map[int64]bool, len(roster))
	for _, id := range roster {
		inRoster[id] = true
	}

	var eligible []model.Person
	for _, p := range assignable {
		if len(roster) > 0 && !inRoster[p.ID] {
			continue
		}
		if p.ExcludedFromAuto {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible, nil
}

// awardFallback resolves who receives points when a completion names no
// point-eligible contributor: the roster if configured, else the general
// assignable set, filtered to the points-eligible.
func (e *Engine) awardFallback(tmpl *model.TaskTemplate) ([]int64, error) {
	roster, err := e.templates.Roster(tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}

	if len(roster) > 0 {
		var ids []int64
		for _, id := range roster {
			p, err := e.persons.GetByID(id)
			if err != nil {
				return nil, err
			}
			if p != nil && p.Active && p.PointsEligible {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	assignable, err := e.persons.ListAssignable()
	if err != nil {
		return nil, fmt.Errorf("list assignable: %w", err)
	}
	var ids []int64
	for _, p := range assignable {
		if p.PointsEligible {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
