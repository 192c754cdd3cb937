package engine

import (
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/taskwheel/internal/database"
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/store"
	"github.com/dukerupert/taskwheel/internal/task"
)

// recordingNotifier captures events so tests can assert on what the engine
// announced without a real websocket hub.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) byType(typ string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	db       *sql.DB
	stores   Stores
	engine   *Engine
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := Stores{
		Templates: store.NewTemplateStore(db),
		Instances: store.NewInstanceStore(db),
		Persons:   store.NewPersonStore(db),
		Ledger:    store.NewLedgerStore(db),
		Rotation:  store.NewRotationStore(db),
		Snapshots: store.NewSnapshotStore(db),
		Settings:  store.NewSettingsStore(db),
	}
	notifier := &recordingNotifier{}
	e := New(s, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Deterministic tie-break: always the first candidate.
	e.pick = func(n int) int { return 0 }
	return &testEnv{db: db, stores: s, engine: e, notifier: notifier}
}

func (env *testEnv) addPerson(t *testing.T, name string, mutate func(*store.PersonParams)) *model.Person {
	t.Helper()
	params := store.PersonParams{
		Name:           name,
		Assignable:     true,
		PointsEligible: true,
	}
	if mutate != nil {
		mutate(&params)
	}
	p, err := env.stores.Persons.Create(params)
	if err != nil {
		t.Fatalf("add person %s: %v", name, err)
	}
	return p
}

func (env *testEnv) addTemplate(t *testing.T, name string, mutate func(*store.TemplateParams)) *model.TaskTemplate {
	t.Helper()
	params := store.TemplateParams{
		Name:           name,
		Points:         6,
		RecurrenceRule: "FREQ=DAILY",
		IsPool:         true,
	}
	if mutate != nil {
		mutate(&params)
	}
	tmpl, err := env.stores.Templates.Create(params)
	if err != nil {
		t.Fatalf("add template %s: %v", name, err)
	}
	return tmpl
}

func (env *testEnv) addInstance(t *testing.T, templateID int64, dueAt time.Time, status task.Status, mutate func(*store.InstanceParams)) *model.TaskInstance {
	t.Helper()
	params := store.InstanceParams{
		TemplateID:   templateID,
		DueAt:        dueAt,
		DistributeAt: dueAt.Add(-16 * time.Hour),
		Status:       status,
		Points:       6,
	}
	if mutate != nil {
		mutate(&params)
	}
	inst, err := env.stores.Instances.Create(params)
	if err != nil {
		t.Fatalf("add instance for template %d: %v", templateID, err)
	}
	return inst
}

// backdateTemplate rewrites created_at, which anchors the recurrence phase,
// and returns the refreshed row.
func (env *testEnv) backdateTemplate(t *testing.T, id int64, createdAt time.Time) *model.TaskTemplate {
	t.Helper()
	if _, err := env.db.Exec(`UPDATE task_templates SET created_at = ? WHERE id = ?`, createdAt, id); err != nil {
		t.Fatalf("backdate template %d: %v", id, err)
	}
	tmpl, err := env.stores.Templates.GetByID(id)
	if err != nil || tmpl == nil {
		t.Fatalf("reload template %d: %v", id, err)
	}
	return tmpl
}

func (env *testEnv) instance(t *testing.T, id int64) *model.TaskInstance {
	t.Helper()
	inst, err := env.stores.Instances.GetByID(id)
	if err != nil {
		t.Fatalf("get instance %d: %v", id, err)
	}
	if inst == nil {
		t.Fatalf("instance %d not found", id)
	}
	return inst
}
