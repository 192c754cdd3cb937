package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskwheel/internal/backup"
	"github.com/dukerupert/taskwheel/internal/database"
	"github.com/dukerupert/taskwheel/internal/driver"
	"github.com/dukerupert/taskwheel/internal/logging"
	"github.com/dukerupert/taskwheel/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskwheel",
	Short: "taskwheel - household chore scheduling engine",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the job driver",
	RunE:  runServe,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduled tick and exit",
}

var tickMidnightCmd = &cobra.Command{
	Use:   "midnight",
	Short: "Reset counters, mark overdue, create the day's instances",
	RunE:  runTick(func(d *driver.Driver) { d.RunMidnight() }),
}

var tickDistributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Assign undesirable pool tasks past their distribution time",
	RunE:  runTick(func(d *driver.Driver) { d.RunDistribution() }),
}

var tickSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture the weekly points snapshot",
	RunE:  runTick(func(d *driver.Driver) { d.RunSnapshot() }),
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage encrypted database backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload an encrypted snapshot now",
	RunE:  runBackupNow,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Download a snapshot and replace the local database",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots older than the retention window",
	RunE:  runBackupPrune,
}

func init() {
	tickCmd.AddCommand(tickMidnightCmd, tickDistributeCmd, tickSnapshotCmd)
	backupCmd.AddCommand(backupRunCmd, backupRestoreCmd, backupPruneCmd)
	rootCmd.AddCommand(serveCmd, tickCmd, backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func backupConfig(dbPath string) backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("TASKWHEEL_S3_ENDPOINT"),
			Bucket:    os.Getenv("TASKWHEEL_S3_BUCKET"),
			Region:    envOr("TASKWHEEL_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("TASKWHEEL_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("TASKWHEEL_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("TASKWHEEL_BACKUP_PASSPHRASE"),
		ScheduleHour:  envInt("TASKWHEEL_BACKUP_HOUR", 3),
		RetentionDays: envInt("TASKWHEEL_BACKUP_RETENTION_DAYS", 30),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.Setup(os.Getenv("TASKWHEEL_LOG_LEVEL"))
	port := envOr("TASKWHEEL_PORT", "8080")
	dbPath := envOr("TASKWHEEL_DB_PATH", "taskwheel.db")

	db, err := database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	backups := backup.New(backupConfig(dbPath), db, logger.With("component", "backup"))
	srv := server.New(db, backups, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := driver.New(srv.Engine(), logger.With("component", "driver"))
	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}

	if backups.Enabled() {
		backups.Start(ctx)
		defer backups.Stop()
	} else {
		logger.Info("backups disabled: bucket, credentials, or passphrase missing")
	}

	// Rate-limiter entries expire on their own; sweep the map hourly so it
	// does not grow with churned client addresses.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskwheel listening", "port", port, "db", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	cancel()
	drv.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runTick opens the database, runs one tick against it, and exits. Meant for
// external schedulers and recovery after downtime.
func runTick(fn func(*driver.Driver)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := logging.Setup(os.Getenv("TASKWHEEL_LOG_LEVEL"))
		dbPath := envOr("TASKWHEEL_DB_PATH", "taskwheel.db")

		db, err := database.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		srv := server.New(db, backup.New(backupConfig(dbPath), db, logger), logger)
		fn(driver.New(srv.Engine(), logger.With("component", "driver")))
		return nil
	}
}

// newBackupManager builds a configured manager for the backup subcommands,
// failing fast when backups are not configured. Restore and prune do not
// need the live database, so opening it is optional.
func newBackupManager(withDB bool) (*backup.Manager, *sql.DB, error) {
	logger := logging.Setup(os.Getenv("TASKWHEEL_LOG_LEVEL"))
	dbPath := envOr("TASKWHEEL_DB_PATH", "taskwheel.db")

	var db *sql.DB
	if withDB {
		var err error
		db, err = database.Open(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
	}

	m := backup.New(backupConfig(dbPath), db, logger.With("component", "backup"))
	if !m.Enabled() {
		if db != nil {
			db.Close()
		}
		return nil, nil, fmt.Errorf("backups are not configured: set TASKWHEEL_S3_BUCKET, credentials, and TASKWHEEL_BACKUP_PASSPHRASE")
	}
	return m, db, nil
}

func runBackupNow(cmd *cobra.Command, args []string) error {
	m, db, err := newBackupManager(true)
	if err != nil {
		return err
	}
	defer db.Close()

	key, err := m.RunNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	fmt.Println(key)
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	m, _, err := newBackupManager(false)
	if err != nil {
		return err
	}
	if err := m.Restore(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	fmt.Println("restored; restart the server to pick up the new database")
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	m, _, err := newBackupManager(false)
	if err != nil {
		return err
	}
	if err := m.Cleanup(cmd.Context()); err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	return nil
}
