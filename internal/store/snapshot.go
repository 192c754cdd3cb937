package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/taskwheel/internal/model"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Create writes one period snapshot. The unique (person, period) index makes
// a re-run of the same snapshot tick fail per-person rather than duplicate.
func (s *SnapshotStore) Create(personID int64, periodEnd string, balanceHundredths int64, perfect bool, streak int) (*model.Snapshot, error) {
	result, err := s.db.Exec(
		`INSERT INTO snapshots (person_id, period_end, balance_hundredths, perfect, streak) VALUES (?, ?, ?, ?, ?)`,
		personID, periodEnd, balanceHundredths, perfect, streak,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var sn model.Snapshot
	err := scanner.Scan(&sn.ID, &sn.PersonID, &sn.PeriodEnd, &sn.BalanceHundredths, &sn.Perfect, &sn.Streak, &sn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

const snapshotCols = `id, person_id, period_end, balance_hundredths, perfect, streak, created_at`

func (s *SnapshotStore) GetByID(id int64) (*model.Snapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return sn, nil
}

// GetForPeriod returns a person's snapshot for a period, if taken.
func (s *SnapshotStore) GetForPeriod(personID int64, periodEnd string) (*model.Snapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM snapshots WHERE person_id = ? AND period_end = ?`, personID, periodEnd)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for period: %w", err)
	}
	return sn, nil
}

// ListForPerson returns a person's snapshots, newest period first.
func (s *SnapshotStore) ListForPerson(personID int64) ([]model.Snapshot, error) {
	rows, err := s.db.Query(`SELECT `+snapshotCols+` FROM snapshots WHERE person_id = ? ORDER BY period_end DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *sn)
	}
	return snapshots, rows.Err()
}
