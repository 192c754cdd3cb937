package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/taskwheel/internal/model"
)

type RotationStore struct {
	db *sql.DB
}

func NewRotationStore(db *sql.DB) *RotationStore {
	return &RotationStore{db: db}
}

// Get returns the rotation state for a template, or a zero state if none
// has been recorded yet.
func (s *RotationStore) Get(templateID int64) (*model.RotationState, error) {
	row := s.db.QueryRow(
		`SELECT template_id, last_assigned_to, last_assigned_on, last_completed_by, last_completed_on FROM rotation_state WHERE template_id = ?`,
		templateID,
	)
	var r model.RotationState
	var assignedTo, completedBy sql.NullInt64
	err := row.Scan(&r.TemplateID, &assignedTo, &r.LastAssignedOn, &completedBy, &r.LastCompletedOn)
	if err == sql.ErrNoRows {
		return &model.RotationState{TemplateID: templateID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation state: %w", err)
	}
	if assignedTo.Valid {
		r.LastAssignedTo = &assignedTo.Int64
	}
	if completedBy.Valid {
		r.LastCompletedBy = &completedBy.Int64
	}
	return &r, nil
}

// SetAssigned records who received the template's automatic assignment.
func (s *RotationStore) SetAssigned(templateID, personID int64, dateKey string) error {
	_, err := s.db.Exec(
		`INSERT INTO rotation_state (template_id, last_assigned_to, last_assigned_on) VALUES (?, ?, ?)
		 ON CONFLICT(template_id) DO UPDATE SET last_assigned_to = excluded.last_assigned_to, last_assigned_on = excluded.last_assigned_on`,
		templateID, personID, dateKey,
	)
	if err != nil {
		return fmt.Errorf("set rotation assigned: %w", err)
	}
	return nil
}

// SetCompleted records who completed the template's last cycle.
func (s *RotationStore) SetCompleted(templateID, personID int64, dateKey string) error {
	_, err := s.db.Exec(
		`INSERT INTO rotation_state (template_id, last_completed_by, last_completed_on) VALUES (?, ?, ?)
		 ON CONFLICT(template_id) DO UPDATE SET last_completed_by = excluded.last_completed_by, last_completed_on = excluded.last_completed_on`,
		templateID, personID, dateKey,
	)
	if err != nil {
		return fmt.Errorf("set rotation completed: %w", err)
	}
	return nil
}

// ClearCompleted drops the last-completer record, used when a completion is
// undone so the person is not wrongly shielded from (or by) the
// back-to-back exclusion.
func (s *RotationStore) ClearCompleted(templateID int64) error {
	_, err := s.db.Exec(
		`UPDATE rotation_state SET last_completed_by = NULL, last_completed_on = '' WHERE template_id = ?`,
		templateID,
	)
	if err != nil {
		return fmt.Errorf("clear rotation completed: %w", err)
	}
	return nil
}
