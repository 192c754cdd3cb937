package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/taskwheel/internal/database"
	"github.com/dukerupert/taskwheel/internal/model"
	"github.com/dukerupert/taskwheel/internal/task"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPerson(t *testing.T, db *sql.DB, name string) *model.Person {
	t.Helper()
	p, err := NewPersonStore(db).Create(PersonParams{
		Name:           name,
		Assignable:     true,
		PointsEligible: true,
	})
	if err != nil {
		t.Fatalf("seed person %s: %v", name, err)
	}
	return p
}

func seedTemplate(t *testing.T, db *sql.DB, name string, mutate func(*TemplateParams)) *model.TaskTemplate {
	t.Helper()
	params := TemplateParams{
		Name:           name,
		Points:         500,
		RecurrenceRule: "FREQ=DAILY",
		IsPool:         true,
	}
	if mutate != nil {
		mutate(&params)
	}
	tmpl, err := NewTemplateStore(db).Create(params)
	if err != nil {
		t.Fatalf("seed template %s: %v", name, err)
	}
	return tmpl
}

func seedInstance(t *testing.T, db *sql.DB, templateID int64, dueAt time.Time, status task.Status) *model.TaskInstance {
	t.Helper()
	inst, err := NewInstanceStore(db).Create(InstanceParams{
		TemplateID:   templateID,
		DueAt:        dueAt,
		DistributeAt: dueAt.Add(-16 * time.Hour),
		Status:       status,
		Points:       500,
	})
	if err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	return inst
}
