package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskwheel/internal/backup"
	"github.com/dukerupert/taskwheel/internal/engine"
	"github.com/dukerupert/taskwheel/internal/handler"
	"github.com/dukerupert/taskwheel/internal/middleware"
	"github.com/dukerupert/taskwheel/internal/store"
	ws "github.com/dukerupert/taskwheel/internal/websocket"
)

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	engine    *engine.Engine
	personH   *handler.PersonHandler
	templateH *handler.TemplateHandler
	instanceH *handler.InstanceHandler
	pointsH   *handler.PointsHandler
	settingsH *handler.SettingsHandler
	adminH    *handler.AdminHandler
	limiter   *middleware.RateLimiter
	logger    *slog.Logger
}

func New(db *sql.DB, backups *backup.Manager, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	stores := engine.Stores{
		Templates: store.NewTemplateStore(db),
		Instances: store.NewInstanceStore(db),
		Persons:   store.NewPersonStore(db),
		Ledger:    store.NewLedgerStore(db),
		Rotation:  store.NewRotationStore(db),
		Snapshots: store.NewSnapshotStore(db),
		Settings:  store.NewSettingsStore(db),
	}
	eng := engine.New(stores, hub, logger.With("component", "engine"))

	return &Server{
		db:        db,
		hub:       hub,
		engine:    eng,
		personH:   handler.NewPersonHandler(stores.Persons, logger.With("component", "person")),
		templateH: handler.NewTemplateHandler(eng, stores.Templates, logger.With("component", "template")),
		instanceH: handler.NewInstanceHandler(eng, stores.Instances, logger.With("component", "instance")),
		pointsH:   handler.NewPointsHandler(eng, stores.Ledger, stores.Snapshots, logger.With("component", "points")),
		settingsH: handler.NewSettingsHandler(stores.Settings),
		adminH:    handler.NewAdminHandler(eng, backups, logger.With("component", "admin")),
		limiter:   middleware.NewRateLimiter(),
		logger:    logger,
	}
}

// RateLimiter exposes the per-IP limiter so the caller can schedule
// periodic cleanup of stale entries.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}

// Engine exposes the scheduling core for the job driver.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	// People
	mux.HandleFunc("GET /api/people", s.personH.List)
	mux.HandleFunc("POST /api/people", s.personH.Create)
	mux.HandleFunc("GET /api/people/{id}", s.personH.Get)
	mux.HandleFunc("PUT /api/people/{id}", s.personH.Update)
	mux.HandleFunc("DELETE /api/people/{id}", s.personH.Deactivate)

	// Templates
	mux.HandleFunc("GET /api/templates", s.templateH.List)
	mux.HandleFunc("POST /api/templates", s.templateH.Create)
	mux.HandleFunc("GET /api/templates/{id}", s.templateH.Get)
	mux.HandleFunc("PUT /api/templates/{id}", s.templateH.Update)
	mux.HandleFunc("DELETE /api/templates/{id}", s.templateH.Deactivate)
	mux.HandleFunc("POST /api/templates/{id}/reactivate", s.templateH.Reactivate)

	// Instance lifecycle
	mux.HandleFunc("GET /api/instances", s.instanceH.Board)
	mux.HandleFunc("GET /api/instances/blocked", s.instanceH.Blocked)
	mux.HandleFunc("GET /api/instances/{id}", s.instanceH.Get)
	mux.HandleFunc("POST /api/instances/{id}/claim", s.instanceH.Claim)
	mux.HandleFunc("POST /api/instances/{id}/unclaim", s.instanceH.Unclaim)
	mux.HandleFunc("POST /api/instances/{id}/assign", s.instanceH.Assign)
	mux.HandleFunc("POST /api/instances/{id}/complete", s.instanceH.Complete)
	mux.HandleFunc("POST /api/instances/{id}/skip", s.instanceH.Skip)
	mux.HandleFunc("POST /api/instances/{id}/unskip", s.instanceH.Unskip)
	mux.HandleFunc("PUT /api/instances/{id}/schedule", s.instanceH.Reschedule)
	mux.HandleFunc("POST /api/completions/{id}/undo", s.instanceH.Undo)

	// Points and standings
	mux.HandleFunc("GET /api/leaderboard", s.pointsH.Leaderboard)
	mux.HandleFunc("GET /api/people/{id}/balance", s.pointsH.Balance)
	mux.HandleFunc("GET /api/people/{id}/ledger", s.pointsH.Entries)
	mux.HandleFunc("GET /api/people/{id}/snapshots", s.pointsH.Snapshots)
	mux.HandleFunc("POST /api/people/{id}/adjust", s.pointsH.Adjust)
	mux.HandleFunc("POST /api/people/{id}/reset", s.pointsH.ResetBalance)
	mux.HandleFunc("PUT /api/people/{id}/streak", s.pointsH.OverrideStreak)

	// Settings
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)

	// Manual tick triggers and backups
	mux.HandleFunc("POST /api/admin/ticks/midnight", s.adminH.RunMidnight)
	mux.HandleFunc("POST /api/admin/ticks/distribution", s.adminH.RunDistribution)
	mux.HandleFunc("POST /api/admin/ticks/snapshot", s.adminH.RunSnapshot)
	mux.HandleFunc("POST /api/admin/backup", s.adminH.RunBackup)
	mux.HandleFunc("GET /api/admin/backup", s.adminH.BackupStatus)

	var h http.Handler = mux
	h = middleware.RateLimit(s.limiter, 120, time.Minute)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
