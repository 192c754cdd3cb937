package model

// RotationState tracks, per undesirable template, who got the last automatic
// assignment and who completed the last cycle. Dates are "2006-01-02".
type RotationState struct {
	TemplateID      int64  `json:"template_id"`
	LastAssignedTo  *int64 `json:"last_assigned_to"`
	LastAssignedOn  string `json:"last_assigned_on"`
	LastCompletedBy *int64 `json:"last_completed_by"`
	LastCompletedOn string `json:"last_completed_on"`
}
