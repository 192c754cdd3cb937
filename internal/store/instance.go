package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/task"
)

type InstanceStore struct {
	db *sql.DB
}

func NewInstanceStore(db *sql.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

// InstanceParams carries the fields fixed at instance creation.
type InstanceParams struct {
	TemplateID   int64
	DueAt        time.Time
	DistributeAt time.Time
	Status       task.Status
	Assignee     *int64
	Reason       string
	Points       int
	SpawnedFrom  *int64
}

func scanInstance(scanner interface{ Scan(...any) error }) (*model.TaskInstance, error) {
	var i model.TaskInstance
	var assignee, completionID, spawnedFrom, priorAssignee sql.NullInt64
	var assignedAt, completedAt, skippedAt sql.NullTime

	err := scanner.Scan(
		&i.ID, &i.TemplateID, &i.DueAt, &i.DistributeAt, &i.Status,
		&assignee, &i.Reason, &i.Points, &i.AutoAssigned,
		&assignedAt, &completedAt, &skippedAt, &completionID, &spawnedFrom,
		&i.PriorStatus, &priorAssignee, &i.Overdue,
		&i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignee.Valid {
		i.Assignee = &assignee.Int64
	}
	if completionID.Valid {
		i.CompletionID = &completionID.Int64
	}
	if spawnedFrom.Valid {
		i.SpawnedFrom = &spawnedFrom.Int64
	}
	if priorAssignee.Valid {
		i.PriorAssignee = &priorAssignee.Int64
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		i.AssignedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		i.CompletedAt = &t
	}
	if skippedAt.Valid {
		t := skippedAt.Time
		i.SkippedAt = &t
	}
	return &i, nil
}

const instanceCols = `id, template_id, due_at, distribute_at, status, assignee, reason, points, auto_assigned, assigned_at, completed_at, skipped_at, completion_id, spawned_from, prior_status, prior_assignee, overdue, created_at, updated_at`

func (s *InstanceStore) Create(p InstanceParams) (*model.TaskInstance, error) {
	result, err := s.db.Exec(
		`INSERT INTO task_instances (template_id, due_at, distribute_at, status, assignee, reason, points, spawned_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TemplateID, p.DueAt.UTC(), p.DistributeAt.UTC(), string(p.Status),
		nullID(p.Assignee), p.Reason, p.Points, nullID(p.SpawnedFrom),
	)
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *InstanceStore) GetByID(id int64) (*model.TaskInstance, error) {
	row := s.db.QueryRow(`SELECT `+instanceCols+` FROM task_instances WHERE id = ?`, id)
	i, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return i, nil
}

// SaveState persists the mutable lifecycle fields of an instance. Callers
// mutate the model inside the instance lock's critical section and flush once.
func (s *InstanceStore) SaveState(i *model.TaskInstance) error {
	_, err := s.db.Exec(
		`UPDATE task_instances SET status = ?, assignee = ?, reason = ?, auto_assigned = ?, assigned_at = ?, completed_at = ?, skipped_at = ?, completion_id = ?, prior_status = ?, prior_assignee = ?, overdue = ?, due_at = ?, distribute_at = ?, updated_at = ? WHERE id = ?`,
		i.Status, nullID(i.Assignee), i.Reason, i.AutoAssigned,
		nullTime(i.AssignedAt), nullTime(i.CompletedAt), nullTime(i.SkippedAt), nullID(i.CompletionID),
		i.PriorStatus, nullID(i.PriorAssignee), i.Overdue,
		i.DueAt.UTC(), i.DistributeAt.UTC(), time.Now().UTC(), i.ID,
	)
	if err != nil {
		return fmt.Errorf("save instance state: %w", err)
	}
	return nil
}

// OpenForTemplate returns the template's open (non-terminal) instance, if any.
// At most one exists per template; its presence suppresses creation of the
// next cycle's instance.
func (s *InstanceStore) OpenForTemplate(templateID int64) (*model.TaskInstance, error) {
	row := s.db.QueryRow(
		`SELECT `+instanceCols+` FROM task_instances WHERE template_id = ? AND status NOT IN ('completed', 'skipped') ORDER BY due_at DESC LIMIT 1`,
		templateID,
	)
	i, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open instance for template: %w", err)
	}
	return i, nil
}

// ExistsForDay reports whether any instance of the template, in any status,
// covers the day: due after dayStart and no later than dayEnd. Instances
// materialized for a day are due at the midnight ending it, so the window is
// half-open on the left. Guards against re-creating an instance that was
// already completed or skipped earlier the same day.
func (s *InstanceStore) ExistsForDay(templateID int64, dayStart, dayEnd time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_instances WHERE template_id = ? AND due_at > ? AND due_at <= ?`,
		templateID, dayStart.UTC(), dayEnd.UTC(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists for day: %w", err)
	}
	return n > 0, nil
}

// ListOpen returns non-terminal instances of active templates ordered by
// due date. Deactivating a template hides its open instances here.
func (s *InstanceStore) ListOpen() ([]model.TaskInstance, error) {
	return s.list(`SELECT ` + prefixedInstanceCols("i") + ` FROM task_instances i
		 JOIN task_templates t ON t.id = i.template_id
		 WHERE i.status NOT IN ('completed', 'skipped') AND t.active = 1
		 ORDER BY i.due_at ASC, i.id ASC`)
}

// ListDistributable returns pool instances whose distribution time has passed,
// plus blocked instances eligible for a retry, restricted to undesirable
// templates of active templates.
func (s *InstanceStore) ListDistributable(now time.Time) ([]model.TaskInstance, error) {
	return s.list(
		`SELECT `+prefixedInstanceCols("i")+` FROM task_instances i
		 JOIN task_templates t ON t.id = i.template_id
		 WHERE i.status IN ('pool', 'blocked') AND t.is_undesirable = 1 AND t.active = 1 AND i.distribute_at <= ?
		 ORDER BY i.due_at ASC, i.id ASC`,
		now.UTC(),
	)
}

// ListBlocked returns blocked instances for the admin view.
func (s *InstanceStore) ListBlocked() ([]model.TaskInstance, error) {
	return s.list(`SELECT ` + instanceCols + ` FROM task_instances WHERE status = 'blocked' ORDER BY due_at ASC, id ASC`)
}

// ListOverdueCandidates returns open instances past their due timestamp that
// are not yet flagged overdue.
func (s *InstanceStore) ListOverdueCandidates(now time.Time) ([]model.TaskInstance, error) {
	return s.list(
		`SELECT `+instanceCols+` FROM task_instances WHERE status NOT IN ('completed', 'skipped') AND overdue = 0 AND due_at < ? ORDER BY due_at ASC, id ASC`,
		now.UTC(),
	)
}

// ListByTemplate returns all instances of a template, newest first.
func (s *InstanceStore) ListByTemplate(templateID int64) ([]model.TaskInstance, error) {
	return s.list(
		`SELECT `+instanceCols+` FROM task_instances WHERE template_id = ? ORDER BY due_at DESC, id DESC`,
		templateID,
	)
}

// DifficultHolders returns the persons already holding an assigned
// difficult-tagged instance due on the given calendar day.
func (s *InstanceStore) DifficultHolders(dayStart, dayEnd time.Time) (map[int64]bool, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT i.assignee FROM task_instances i
		 JOIN task_templates t ON t.id = i.template_id
		 WHERE t.is_difficult = 1 AND i.status = 'assigned' AND i.assignee IS NOT NULL
		   AND i.due_at >= ? AND i.due_at < ?`,
		dayStart.UTC(), dayEnd.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("difficult holders: %w", err)
	}
	defer rows.Close()

	holders := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		holders[id] = true
	}
	return holders, rows.Err()
}

// AnyOverdueInPeriod reports whether any instance of the person went overdue
// during [start, end). Used by the weekly snapshot's perfect-period check.
func (s *InstanceStore) AnyOverdueInPeriod(personID int64, start, end time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_instances WHERE assignee = ? AND overdue = 1 AND due_at >= ? AND due_at < ?`,
		personID, start.UTC(), end.UTC(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("overdue in period: %w", err)
	}
	return n > 0, nil
}

// LastCompletedDue returns the due date of the template's most recent
// non-undone completion, used to anchor shifted cadences.
func (s *InstanceStore) LastCompletedDue(templateID int64) (*model.TaskInstance, error) {
	row := s.db.QueryRow(
		`SELECT `+instanceCols+` FROM task_instances WHERE template_id = ? AND status = 'completed' ORDER BY completed_at DESC LIMIT 1`,
		templateID,
	)
	i, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed instance: %w", err)
	}
	return i, nil
}

func (s *InstanceStore) list(query string, args ...any) ([]model.TaskInstance, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []model.TaskInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *i)
	}
	return instances, rows.Err()
}

func prefixedInstanceCols(alias string) string {
	return alias + ".id, " + alias + ".template_id, " + alias + ".due_at, " + alias + ".distribute_at, " +
		alias + ".status, " + alias + ".assignee, " + alias + ".reason, " + alias + ".points, " +
		alias + ".auto_assigned, " + alias + ".assigned_at, " + alias + ".completed_at, " +
		alias + ".skipped_at, " + alias + ".completion_id, " + alias + ".spawned_from, " + alias + ".prior_status, " +
		alias + ".prior_assignee, " + alias + ".overdue, " + alias + ".created_at, " + alias + ".updated_at"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
