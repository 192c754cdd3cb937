package engine

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/dukerupert/taskwheel/internal/store"
)

// Event is a fire-and-forget notification about an engine outcome. Delivery
// failures are the sink's problem; the engine never waits on or propagates them.
type Event struct {
	Type       string `json:"type"`
	InstanceID int64  `json:"instance_id,omitempty"`
	TemplateID int64  `json:"template_id,omitempty"`
	PersonID   *int64 `json:"person_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Event types emitted by the engine.
const (
	EventCreated   = "instance_created"
	EventAssigned  = "instance_assigned"
	EventClaimed   = "instance_claimed"
	EventUnclaimed = "instance_unclaimed"
	EventCompleted = "instance_completed"
	EventUndone    = "instance_undone"
	EventSkipped   = "instance_skipped"
	EventUnskipped = "instance_unskipped"
	EventBlocked   = "instance_blocked"
)

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Engine is the scheduling, rotation, and completion core. All state
// transitions on an instance run inside that instance's lock slot.
type Engine struct {
	templates *store.TemplateStore
	instances *store.InstanceStore
	persons   *store.PersonStore
	ledger    *store.LedgerStore
	rotation  *store.RotationStore
	snapshots *store.SnapshotStore
	settings  *store.SettingsStore

	locks    *lockTable
	notifier Notifier
	logger   *slog.Logger

	now  func() time.Time
	pick func(n int) int // tie-break among n equals; uniform by default
}

// Stores bundles the persistence dependencies of the engine.
type Stores struct {
	Templates *store.TemplateStore
	Instances *store.InstanceStore
	Persons   *store.PersonStore
	Ledger    *store.LedgerStore
	Rotation  *store.RotationStore
	Snapshots *store.SnapshotStore
	Settings  *store.SettingsStore
}

// New creates an Engine. notifier may be nil.
func New(s Stores, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		templates: s.Templates,
		instances: s.Instances,
		persons:   s.Persons,
		ledger:    s.Ledger,
		rotation:  s.Rotation,
		snapshots: s.Snapshots,
		settings:  s.Settings,
		locks:     newLockTable(),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		pick:      rand.Intn,
	}
}

// SetClock replaces the engine's clock source, for tests and drivers that
// need deterministic time.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// config takes the per-operation settings snapshot.
func (e *Engine) config() Config {
	return loadConfig(e.settings)
}

func (e *Engine) notify(ev Event) {
	if e.notifier != nil {
		e.notifier.Notify(ev)
	}
}
