package model

import "time"

// TaskTemplate describes a recurring chore. Exactly one of IsPool and
// AssignedTo is set: a pool template produces unclaimed instances, a fixed
// template produces instances pre-assigned to one person.
type TaskTemplate struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Points           int        `json:"points"`
	RecurrenceRule   string     `json:"recurrence_rule"`
	IsPool           bool       `json:"is_pool"`
	AssignedTo       *int64     `json:"assigned_to"`
	IsUndesirable    bool       `json:"is_undesirable"`
	IsDifficult      bool       `json:"is_difficult"`
	ShiftOnLate      bool       `json:"shift_on_late"`
	DistributionTime string     `json:"distribution_time"` // "HH:MM", empty = config default
	ParentID         *int64     `json:"parent_id"`
	SpawnDelayHours  int        `json:"spawn_delay_hours"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
