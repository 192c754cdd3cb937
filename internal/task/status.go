package task

// Status is the lifecycle state of a task instance.
type Status string

const (
	StatusPool      Status = "pool"      // unclaimed, claimable
	StatusAssigned  Status = "assigned"  // held by one person
	StatusCompleted Status = "completed" // terminal, point-bearing
	StatusSkipped   Status = "skipped"   // terminal, admin-initiated, no points
	StatusBlocked   Status = "blocked"   // no eligible assignee; carries a rationale
)

// Blocked rationales recorded on instances automatic assignment could not place.
const (
	ReasonNoEligibleUsers       = "no_eligible_users"
	ReasonAllCompletedYesterday = "all_completed_yesterday"
	ReasonDifficultConflict     = "difficult_conflict"
)

// Terminal reports whether a status ends the instance's open lifecycle.
// Skipped is terminal but restorable within the unskip window.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Open is the complement of Terminal: the instance still wants resolution.
// An open instance suppresses creation of the next cycle's instance.
func (s Status) Open() bool {
	return !s.Terminal()
}

var transitions = map[Status][]Status{
	StatusPool:      {StatusAssigned, StatusCompleted, StatusSkipped, StatusBlocked},
	StatusAssigned:  {StatusPool, StatusCompleted, StatusSkipped},
	StatusCompleted: {StatusPool, StatusAssigned}, // undo restores prior status
	StatusSkipped:   {StatusPool, StatusAssigned}, // unskip restores prior status
	StatusBlocked:   {StatusAssigned, StatusSkipped},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}
