package model

import "time"

// Person is a household member. Assignable and ExcludedFromAuto are distinct:
// an excluded person may still claim or be manually assigned, they are only
// skipped by automatic rotation.
type Person struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Active           bool      `json:"active"`
	Assignable       bool      `json:"assignable"`
	ExcludedFromAuto bool      `json:"excluded_from_auto"`
	PointsEligible   bool      `json:"points_eligible"`
	ClaimsToday      int       `json:"claims_today"`
	LastClaimDate    string    `json:"last_claim_date"` // "2006-01-02", empty = never
	AutoToday        int       `json:"auto_today"`
	LastAutoDate     string    `json:"last_auto_date"`
	Streak           int       `json:"streak"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
