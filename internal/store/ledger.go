package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/taskwheel/internal/model"
)

// LedgerStore owns the immutable point trail: completion records, their
// shares, and the append-only ledger. Balances are derived by summing
// entries; the balance column on each entry is an audit snapshot, never the
// source of truth.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// RecordCompletion writes the completion record, its shares, and one award
// ledger entry per share in a single transaction. completedBy is the person
// the engine credits with the completion, distinct from the share recipients
// when the points fell back to another set.
func (s *LedgerStore) RecordCompletion(instanceID int64, completedAt time.Time, completedBy *int64, shares []model.CompletionShare, note string) (*model.CompletionRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO completions (instance_id, completed_at, completed_by) VALUES (?, ?, ?)`,
		instanceID, completedAt.UTC(), nullID(completedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	completionID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, share := range shares {
		if _, err := tx.Exec(
			`INSERT INTO completion_shares (completion_id, person_id, share_hundredths) VALUES (?, ?, ?)`,
			completionID, share.PersonID, share.ShareHundredths,
		); err != nil {
			return nil, fmt.Errorf("insert share: %w", err)
		}
		if err := appendEntry(tx, share.PersonID, share.ShareHundredths, model.LedgerKindAward, &completionID, note); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion: %w", err)
	}
	return s.GetCompletion(completionID)
}

// RecordUndo flags the completion undone and appends one reversal entry per
// share, in a single transaction. The original entries stay untouched.
func (s *LedgerStore) RecordUndo(completionID, undoneBy int64, at time.Time) error {
	completion, err := s.GetCompletion(completionID)
	if err != nil {
		return err
	}
	if completion == nil {
		return fmt.Errorf("completion %d not found", completionID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE completions SET undone = 1, undone_at = ?, undone_by = ? WHERE id = ?`,
		at.UTC(), undoneBy, completionID,
	); err != nil {
		return fmt.Errorf("mark undone: %w", err)
	}

	for _, share := range completion.Shares {
		if err := appendEntry(tx, share.PersonID, -share.ShareHundredths, model.LedgerKindUndo, &completionID, "completion undone"); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Adjust appends a manual adjustment entry for a person.
func (s *LedgerStore) Adjust(personID, deltaHundredths int64, note string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendEntry(tx, personID, deltaHundredths, model.LedgerKindAdjustment, nil, note); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset appends one entry zeroing a person's balance. The delta is computed
// inside the transaction so a concurrent award cannot slip between the sum
// and the write. A balance already at zero appends nothing.
func (s *LedgerStore) Reset(personID int64, note string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow(
		`SELECT COALESCE(SUM(delta_hundredths), 0) FROM ledger_entries WHERE person_id = ?`,
		personID,
	).Scan(&balance)
	if err != nil {
		return fmt.Errorf("sum balance: %w", err)
	}
	if balance == 0 {
		return nil
	}
	if err := appendEntry(tx, personID, -balance, model.LedgerKindReset, nil, note); err != nil {
		return err
	}
	return tx.Commit()
}

// appendEntry writes one ledger row, computing the running balance inside
// the transaction so concurrent appends cannot interleave stale balances.
func appendEntry(tx *sql.Tx, personID, delta int64, kind string, completionID *int64, note string) error {
	var balance int64
	err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta_hundredths), 0) FROM ledger_entries WHERE person_id = ?`,
		personID,
	).Scan(&balance)
	if err != nil {
		return fmt.Errorf("sum balance: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO ledger_entries (person_id, delta_hundredths, kind, completion_id, balance_hundredths, note, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		personID, delta, kind, nullID(completionID), balance+delta, note, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetCompletion(id int64) (*model.CompletionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, instance_id, completed_at, completed_by, undone, undone_at, undone_by FROM completions WHERE id = ?`, id,
	)
	var c model.CompletionRecord
	var completedBy sql.NullInt64
	var undoneAt sql.NullTime
	var undoneBy sql.NullInt64
	err := row.Scan(&c.ID, &c.InstanceID, &c.CompletedAt, &completedBy, &c.Undone, &undoneAt, &undoneBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if completedBy.Valid {
		c.CompletedBy = &completedBy.Int64
	}
	if undoneAt.Valid {
		t := undoneAt.Time
		c.UndoneAt = &t
	}
	if undoneBy.Valid {
		c.UndoneBy = &undoneBy.Int64
	}

	rows, err := s.db.Query(
		`SELECT person_id, share_hundredths FROM completion_shares WHERE completion_id = ? ORDER BY person_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var share model.CompletionShare
		if err := rows.Scan(&share.PersonID, &share.ShareHundredths); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		c.Shares = append(c.Shares, share)
	}
	return &c, rows.Err()
}

// BalanceFor sums the ledger for one person.
func (s *LedgerStore) BalanceFor(personID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(delta_hundredths), 0) FROM ledger_entries WHERE person_id = ?`,
		personID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance for person: %w", err)
	}
	return balance, nil
}

// BalanceSince sums the ledger for one person over entries at or after since.
func (s *LedgerStore) BalanceSince(personID int64, since time.Time) (int64, error) {
	var balance int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(delta_hundredths), 0) FROM ledger_entries WHERE person_id = ? AND created_at >= ?`,
		personID, since.UTC(),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance since: %w", err)
	}
	return balance, nil
}

// Leaderboard returns each active person's derived balances, highest first.
func (s *LedgerStore) Leaderboard(weekStart time.Time) ([]model.PointBalance, error) {
	rows, err := s.db.Query(
		`SELECT p.id, p.name,
		        COALESCE(SUM(l.delta_hundredths), 0),
		        COALESCE(SUM(CASE WHEN l.created_at >= ? THEN l.delta_hundredths ELSE 0 END), 0)
		 FROM persons p
		 LEFT JOIN ledger_entries l ON l.person_id = p.id
		 WHERE p.active = 1
		 GROUP BY p.id, p.name
		 ORDER BY 3 DESC, p.name ASC`,
		weekStart.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var board []model.PointBalance
	for rows.Next() {
		var b model.PointBalance
		if err := rows.Scan(&b.PersonID, &b.PersonName, &b.BalanceHundredths, &b.WeekHundredths); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		board = append(board, b)
	}
	return board, rows.Err()
}

// EntriesFor lists a person's ledger entries, newest first.
func (s *LedgerStore) EntriesFor(personID int64, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, person_id, delta_hundredths, kind, completion_id, balance_hundredths, note, created_at
		 FROM ledger_entries WHERE person_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		personID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("entries for person: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var completionID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.PersonID, &e.DeltaHundredths, &e.Kind, &completionID, &e.BalanceHundredths, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if completionID.Valid {
			e.CompletionID = &completionID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
