// Entry point for the agilradar tender monitor: opens the database,
// wires the pipeline, and runs the automation scheduler until signalled.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agilradar/agilradar/dbopen"
	"github.com/agilradar/agilradar/monitor"
	"github.com/agilradar/agilradar/schedule"
	"github.com/agilradar/agilradar/settings"
	"github.com/agilradar/agilradar/taskrun"
	_ "modernc.org/sqlite"
)

func main() {
	dbPath := os.Getenv("DATABASE_URL")
	if dbPath == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	configPath := env("CONFIG_FILE", "config.yaml")
	settingsPath := env("SETTINGS_FILE", "settings.json")
	logPath := env("LOG_FILE", "agilradar.log")
	logLevel := env("LOG_LEVEL", "info")

	// Logging: stderr plus a rolling file the user can inspect.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	out := io.Writer(os.Stderr)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		defer f.Close()
		out = io.MultiWriter(os.Stderr, f)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := monitor.LoadConfig(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if v := os.Getenv("MERCADOPUBLICO_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		cfg.Headless = boolEnv(v)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := monitor.ApplySchema(ctx, db); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}

	svc := monitor.New(db, cfg, monitor.WithLogger(logger))
	runner := taskrun.New(logger)
	sm := settings.NewManager(settingsPath, logger)

	// Opportunistic maintenance on startup; failures are logged inside.
	svc.MaintenanceSweep(ctx)

	progress := func(p taskrun.Progress) *monitor.Progress {
		return &monitor.Progress{Text: p.Text, Pct: p.Pct}
	}
	sch := schedule.New(schedule.Config{
		Settings: sm,
		Runner:   runner,
		Logger:   logger,
		Jobs: schedule.Jobs{
			AutoExtract: func(ctx context.Context, p taskrun.Progress) (any, error) {
				day := time.Now().AddDate(0, 0, -1)
				n, err := svc.FullHarvest(ctx, day, day, 0, progress(p))
				return n, err
			},
			AutoUpdate: func(ctx context.Context, p taskrun.Progress) (any, error) {
				return nil, svc.SelectiveUpdate(ctx, []string{"all"}, progress(p))
			},
		},
		Callbacks: taskrun.Callbacks{
			OnProgressText: func(msg string) { logger.Info("task", "status", msg) },
		},
	})

	logger.Info("agilradar started", "db", dbPath)
	sch.Run(ctx)

	runner.Wait()
	logger.Info("agilradar stopped")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// boolEnv treats "0" and any casing of "false" as false; everything else
// set is true.
func boolEnv(v string) bool {
	return v != "0" && !strings.EqualFold(v, "false")
}
