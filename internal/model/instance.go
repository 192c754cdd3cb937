package model

import "time"

// TaskInstance is one dated occurrence of a template. Points are snapshotted
// at creation so later template edits never rewrite history.
type TaskInstance struct {
	ID            int64      `json:"id"`
	TemplateID    int64      `json:"template_id"`
	DueAt         time.Time  `json:"due_at"`
	DistributeAt  time.Time  `json:"distribute_at"`
	Status        string     `json:"status"`
	Assignee      *int64     `json:"assignee"`
	Reason        string     `json:"reason"` // blocked rationale or skip reason
	Points        int        `json:"points"`
	AutoAssigned  bool       `json:"auto_assigned"`
	AssignedAt    *time.Time `json:"assigned_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	SkippedAt     *time.Time `json:"skipped_at"`
	CompletionID  *int64     `json:"completion_id"`
	SpawnedFrom   *int64     `json:"spawned_from"`
	PriorStatus   string     `json:"prior_status"` // restore target for undo/unskip
	PriorAssignee *int64     `json:"prior_assignee"`
	Overdue       bool       `json:"overdue"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
