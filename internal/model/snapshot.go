package model

import "time"

// Snapshot is one person's balance captured at the end of a scoring period,
// before any reset. Perfect means no instance of theirs went overdue during
// the period.
type Snapshot struct {
	ID                int64     `json:"id"`
	PersonID          int64     `json:"person_id"`
	PeriodEnd         string    `json:"period_end"` // "2006-01-02"
	BalanceHundredths int64     `json:"balance_hundredths"`
	Perfect           bool      `json:"perfect"`
	Streak            int       `json:"streak"`
	CreatedAt         time.Time `json:"created_at"`
}
