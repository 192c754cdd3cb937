package model

import "time"

// Point amounts are stored in hundredths so that split shares like 3.33
// stay exact integers end to end.

const PointScale = 100

// CompletionRecord captures who finished an instance and how the points were
// split. Immutable once written except for the undo flag.
type CompletionRecord struct {
	ID          int64      `json:"id"`
	InstanceID  int64      `json:"instance_id"`
	CompletedAt time.Time  `json:"completed_at"`
	CompletedBy *int64     `json:"completed_by"`
	Undone      bool       `json:"undone"`
	UndoneAt    *time.Time `json:"undone_at"`
	UndoneBy    *int64     `json:"undone_by"`
	Shares      []CompletionShare `json:"shares"`
}

// CompletionShare is one person's slice of a completion's points.
type CompletionShare struct {
	PersonID        int64 `json:"person_id"`
	ShareHundredths int64 `json:"share_hundredths"`
}

// Ledger entry kinds.
const (
	LedgerKindAward      = "award"
	LedgerKindUndo       = "undo"
	LedgerKindAdjustment = "adjustment"
	LedgerKindReset      = "reset"
)

// LedgerEntry is one append-only signed point delta. Balance is the running
// balance at the moment the entry was written; the ledger is the source of
// truth and balances are always re-derivable from it.
type LedgerEntry struct {
	ID                int64     `json:"id"`
	PersonID          int64     `json:"person_id"`
	DeltaHundredths   int64     `json:"delta_hundredths"`
	Kind              string    `json:"kind"`
	CompletionID      *int64    `json:"completion_id"`
	BalanceHundredths int64     `json:"balance_hundredths"`
	Note              string    `json:"note"`
	CreatedAt         time.Time `json:"created_at"`
}

// PointBalance is a derived leaderboard row.
type PointBalance struct {
	PersonID          int64  `json:"person_id"`
	PersonName        string `json:"person_name"`
	BalanceHundredths int64  `json:"balance_hundredths"`
	WeekHundredths    int64  `json:"week_hundredths"`
}
