package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
)

type PersonStore struct {
	db *sql.DB
}

func NewPersonStore(db *sql.DB) *PersonStore {
	return &PersonStore{db: db}
}

// PersonParams carries the writable flags of a person.
type PersonParams struct {
	Name             string
	Assignable       bool
	ExcludedFromAuto bool
	PointsEligible   bool
}

func scanPerson(scanner interface{ Scan(...any) error }) (*model.Person, error) {
	var p model.Person
	err := scanner.Scan(
		&p.ID, &p.Name, &p.Active, &p.Assignable, &p.ExcludedFromAuto,
		&p.PointsEligible, &p.ClaimsToday, &p.LastClaimDate,
		&p.AutoToday, &p.LastAutoDate, &p.Streak,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const personCols = `id, name, active, assignable, excluded_from_auto, points_eligible, claims_today, last_claim_date, auto_today, last_auto_date, streak, created_at, updated_at`

func (s *PersonStore) Create(p PersonParams) (*model.Person, error) {
	result, err := s.db.Exec(
		`INSERT INTO persons (name, assignable, excluded_from_auto, points_eligible) VALUES (?, ?, ?, ?)`,
		p.Name, p.Assignable, p.ExcludedFromAuto, p.PointsEligible,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PersonStore) GetByID(id int64) (*model.Person, error) {
	row := s.db.QueryRow(`SELECT `+personCols+` FROM persons WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PersonStore) List() ([]model.Person, error) {
	return s.list(`SELECT ` + personCols + ` FROM persons WHERE active = 1 ORDER BY name ASC`)
}

// ListAssignable returns active persons who may receive tasks at all. The
// excluded_from_auto flag is NOT filtered here: it only affects automatic
// rotation, which the eligibility resolver applies itself.
func (s *PersonStore) ListAssignable() ([]model.Person, error) {
	return s.list(`SELECT ` + personCols + ` FROM persons WHERE active = 1 AND assignable = 1 ORDER BY id ASC`)
}

// ListPointsEligible returns active persons who can receive point awards.
func (s *PersonStore) ListPointsEligible() ([]model.Person, error) {
	return s.list(`SELECT ` + personCols + ` FROM persons WHERE active = 1 AND points_eligible = 1 ORDER BY id ASC`)
}

func (s *PersonStore) list(query string, args ...any) ([]model.Person, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, rows.Err()
}

func (s *PersonStore) Update(id int64, p PersonParams) (*model.Person, error) {
	_, err := s.db.Exec(
		`UPDATE persons SET name = ?, assignable = ?, excluded_from_auto = ?, points_eligible = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Assignable, p.ExcludedFromAuto, p.PointsEligible, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update person: %w", err)
	}
	return s.GetByID(id)
}

// Deactivate soft-deletes a person; ledger history stays intact.
func (s *PersonStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE persons SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate person: %w", err)
	}
	return nil
}

// --- Daily counters ---
// Counters carry the date they were last touched so a stale counter from a
// previous day reads as zero without waiting for the midnight reset.

// BumpClaims increments the person's claim counter for the given day and
// returns the new count.
func (s *PersonStore) BumpClaims(id int64, dateKey string) (int, error) {
	_, err := s.db.Exec(
		`UPDATE persons SET claims_today = CASE WHEN last_claim_date = ? THEN claims_today + 1 ELSE 1 END, last_claim_date = ?, updated_at = ? WHERE id = ?`,
		dateKey, dateKey, time.Now().UTC(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("bump claims: %w", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT claims_today FROM persons WHERE id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("read claims: %w", err)
	}
	return n, nil
}

// ReleaseClaim decrements the claim counter, but only when the counter still
// belongs to the given day. Other days' counters are never repaired.
func (s *PersonStore) ReleaseClaim(id int64, dateKey string) error {
	_, err := s.db.Exec(
		`UPDATE persons SET claims_today = MAX(claims_today - 1, 0), updated_at = ? WHERE id = ? AND last_claim_date = ?`,
		time.Now().UTC(), id, dateKey,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// ClaimsOn returns the person's claim count for the given day.
func (s *PersonStore) ClaimsOn(id int64, dateKey string) (int, error) {
	var n int
	var last string
	err := s.db.QueryRow(`SELECT claims_today, last_claim_date FROM persons WHERE id = ?`, id).Scan(&n, &last)
	if err != nil {
		return 0, fmt.Errorf("claims on: %w", err)
	}
	if last != dateKey {
		return 0, nil
	}
	return n, nil
}

// BumpAuto increments the automatic-assignment tally for the given day.
func (s *PersonStore) BumpAuto(id int64, dateKey string) error {
	_, err := s.db.Exec(
		`UPDATE persons SET auto_today = CASE WHEN last_auto_date = ? THEN auto_today + 1 ELSE 1 END, last_auto_date = ?, updated_at = ? WHERE id = ?`,
		dateKey, dateKey, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("bump auto: %w", err)
	}
	return nil
}

// ReleaseAuto decrements the automatic-assignment tally if it still belongs
// to the given day.
func (s *PersonStore) ReleaseAuto(id int64, dateKey string) error {
	_, err := s.db.Exec(
		`UPDATE persons SET auto_today = MAX(auto_today - 1, 0), updated_at = ? WHERE id = ? AND last_auto_date = ?`,
		time.Now().UTC(), id, dateKey,
	)
	if err != nil {
		return fmt.Errorf("release auto: %w", err)
	}
	return nil
}

// AutoOn returns the person's automatic-assignment tally for the given day.
func (s *PersonStore) AutoOn(id int64, dateKey string) (int, error) {
	var n int
	var last string
	err := s.db.QueryRow(`SELECT auto_today, last_auto_date FROM persons WHERE id = ?`, id).Scan(&n, &last)
	if err != nil {
		return 0, fmt.Errorf("auto on: %w", err)
	}
	if last != dateKey {
		return 0, nil
	}
	return n, nil
}

// ResetDailyCounters zeroes all claim and auto counters. Run by the midnight tick.
func (s *PersonStore) ResetDailyCounters() error {
	_, err := s.db.Exec(`UPDATE persons SET claims_today = 0, auto_today = 0, updated_at = ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset daily counters: %w", err)
	}
	return nil
}

// SetStreak overwrites a person's streak counter.
func (s *PersonStore) SetStreak(id int64, streak int) error {
	_, err := s.db.Exec(`UPDATE persons SET streak = ?, updated_at = ? WHERE id = ?`, streak, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set streak: %w", err)
	}
	return nil
}
