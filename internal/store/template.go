package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
)

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// TemplateParams carries the writable fields of a template.
type TemplateParams struct {
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
}

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var assignedTo, parentID sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.Name, &t.Description, &t.Points, &t.RecurrenceRule,
		&t.IsPool, &assignedTo, &t.IsUndesirable, &t.IsDifficult, &t.ShiftOnLate,
		&t.DistributionTime, &parentID, &t.SpawnDelayHours, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.Int64
	}
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	return &t, nil
}

const templateCols = `id, name, description, points, recurrence_rule, is_pool, assigned_to, is_undesirable, is_difficult, shift_on_late, distribution_time, parent_id, spawn_delay_hours, active, created_at, updated_at`

func (s *TemplateStore) Create(p TemplateParams) (*model.TaskTemplate, error) {
	result, err := s.db.Exec(
		`INSERT INTO task_templates (name, description, points, recurrence_rule, is_pool, assigned_to, is_undesirable, is_difficult, shift_on_late, distribution_time, parent_id, spawn_delay_hours)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Points, p.RecurrenceRule, p.IsPool, nullID(p.AssignedTo),
		p.IsUndesirable, p.IsDifficult, p.ShiftOnLate, p.DistributionTime,
		nullID(p.ParentID), p.SpawnDelayHours,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TemplateStore) GetByID(id int64) (*model.TaskTemplate, error) {
	row := s.db.QueryRow(`SELECT `+templateCols+` FROM task_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListActive returns active templates only. Inactive templates produce no new
// instances and are hidden from listings; the active filter lives here, not at
// call sites.
func (s *TemplateStore) ListActive() ([]model.TaskTemplate, error) {
	return s.list(`SELECT ` + templateCols + ` FROM task_templates WHERE active = 1 ORDER BY name ASC`)
}

// ListAll includes deactivated templates, for admin history views.
func (s *TemplateStore) ListAll() ([]model.TaskTemplate, error) {
	return s.list(`SELECT ` + templateCols + ` FROM task_templates ORDER BY active DESC, name ASC`)
}

func (s *TemplateStore) ListChildren(parentID int64) ([]model.TaskTemplate, error) {
	return s.list(`SELECT `+templateCols+` FROM task_templates WHERE parent_id = ? AND active = 1 ORDER BY name ASC`, parentID)
}

func (s *TemplateStore) list(query string, args ...any) ([]model.TaskTemplate, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Update(id int64, p TemplateParams) (*model.TaskTemplate, error) {
	_, err := s.db.Exec(
		`UPDATE task_templates SET name = ?, description = ?, points = ?, recurrence_rule = ?, is_pool = ?, assigned_to = ?, is_undesirable = ?, is_difficult = ?, shift_on_late = ?, distribution_time = ?, parent_id = ?, spawn_delay_hours = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.Points, p.RecurrenceRule, p.IsPool, nullID(p.AssignedTo),
		p.IsUndesirable, p.IsDifficult, p.ShiftOnLate, p.DistributionTime,
		nullID(p.ParentID), p.SpawnDelayHours, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.GetByID(id)
}

// Deactivate soft-deletes: history stays, no new instances are produced.
func (s *TemplateStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE task_templates SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	return nil
}

func (s *TemplateStore) Reactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE task_templates SET active = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reactivate template: %w", err)
	}
	return nil
}

// --- Eligibility roster ---

func (s *TemplateStore) Roster(templateID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT person_id FROM template_eligibility WHERE template_id = ? ORDER BY person_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TemplateStore) SetRoster(templateID int64, personIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM template_eligibility WHERE template_id = ?`, templateID); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	for _, pid := range personIDs {
		if _, err := tx.Exec(`INSERT INTO template_eligibility (template_id, person_id) VALUES (?, ?)`, templateID, pid); err != nil {
			return fmt.Errorf("insert roster entry: %w", err)
		}
	}
	return tx.Commit()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
