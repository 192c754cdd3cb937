package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"github.com/dukerupert/taskwheel/internal/engine"
	"github.com/dukerupert/taskwheel/internal/recurrence"
)

// Schedules for the engine's periodic work. Distribution runs every minute
// and is idempotent, so a moved distribution clock takes effect within a
// minute without re-registration.
const (
	midnightSpec     = "0 0 * * *"
	distributionSpec = "* * * * *"
	snapshotSpec     = "0 0 * * MON"
)

// Driver owns the cron process that feeds the engine its ticks. Each tick
// run carries a generated id so one run's log lines can be pulled together.
type Driver struct {
	engine *engine.Engine
	cron   *rcron.Cron
	logger *slog.Logger
	now    func() time.Time
}

func New(e *engine.Engine, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		engine: e,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the ticks and starts the scheduler. It returns once the
// scheduler is running; the context cancels it.
func (d *Driver) Start(ctx context.Context) error {
	d.cron = rcron.New()

	if _, err := d.cron.AddFunc(midnightSpec, d.RunMidnight); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(distributionSpec, d.RunDistribution); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(snapshotSpec, d.RunSnapshot); err != nil {
		return err
	}

	d.cron.Start()
	d.logger.Info("driver started")

	go func() {
		<-ctx.Done()
		d.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (d *Driver) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.logger.Info("driver stopped")
}

// RunMidnight performs the daily turnover: reset fairness counters, flag
// what went overdue, then materialize the day's instances. Order matters:
// new instances are created against fresh counters.
func (d *Driver) RunMidnight() {
	now := d.now()
	log := d.logger.With("run_id", uuid.NewString(), "tick", "midnight")
	log.Info("tick start", "date", recurrence.DateKey(now))

	if err := d.engine.ResetDailyCounters(); err != nil {
		log.Error("reset daily counters", "error", err)
	}
	marked, err := d.engine.MarkOverdueInstances(now)
	if err != nil {
		log.Error("mark overdue", "error", err)
	}
	created, err := d.engine.CreateDueInstances(now)
	if err != nil {
		log.Error("create due instances", "error", err)
	}
	log.Info("tick done", "created", len(created), "marked_overdue", marked)
}

// RunDistribution pushes undesirable pool instances past their distribution
// time through the rotation assigner.
func (d *Driver) RunDistribution() {
	now := d.now()
	touched, err := d.engine.RunDistribution(now)
	if err != nil {
		d.logger.Error("distribution tick", "run_id", uuid.NewString(), "error", err)
		return
	}
	if len(touched) > 0 {
		d.logger.Info("distribution tick", "run_id", uuid.NewString(), "touched", len(touched))
	}
}

// RunSnapshot captures the weekly point standings and streaks.
func (d *Driver) RunSnapshot() {
	now := d.now()
	log := d.logger.With("run_id", uuid.NewString(), "tick", "snapshot")

	taken, err := d.engine.TakeWeeklySnapshot(now)
	if err != nil {
		log.Error("weekly snapshot", "error", err)
		return
	}
	log.Info("weekly snapshot", "snapshots", len(taken))
}
