// Package schedule fires the automated pipeline runs at their configured
// wall-clock times. It polls instead of computing next-run deadlines: a
// short ticker re-reads the settings every pass, so edits take effect
// without rescheduling and a laptop waking from sleep just catches the
// next tick.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agilradar/agilradar/taskrun"
)

// Submitter is the slice of the task runner the scheduler needs.
type Submitter interface {
	Busy() bool
	Submit(ctx context.Context, name string, task taskrun.Task, cb taskrun.Callbacks) error
}

// SettingsSource yields the current automation toggles, refreshed from
// disk.
type SettingsSource interface {
	Reload() error
	AutoExtract() (enabled bool, at string)
	AutoUpdate() (enabled bool, at string)
}

// Jobs are the two automated tasks.
type Jobs struct {
	AutoExtract taskrun.Task
	AutoUpdate  taskrun.Task
}

// Config configures the Scheduler.
type Config struct {
	Settings SettingsSource
	Runner   Submitter
	Jobs     Jobs

	// Interval between polls. Default 30s, which is fine-grained enough
	// to never miss a whole HH:MM minute.
	Interval time.Duration

	// Callbacks attached to every submitted job.
	Callbacks taskrun.Callbacks

	// Now overrides the wall clock, for tests.
	Now func() time.Time

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler polls the clock and dispatches jobs. Each job fires at most
// once per day per name, tracked by an executed set keyed on date+name.
type Scheduler struct {
	cfg      Config
	executed map[string]struct{}
}

func New(cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{cfg: cfg, executed: make(map[string]struct{})}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cfg.Logger.Info("schedule: running", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick is one poll pass. Exported so tests can drive the scheduler with
// a fake clock instead of waiting out real intervals.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.cfg.Settings.Reload(); err != nil {
		s.cfg.Logger.Warn("schedule: settings reload", "error", err)
	}
	if s.cfg.Runner.Busy() {
		return
	}

	now := s.cfg.Now()
	today := now.Format("2006-01-02")
	hhmm := now.Format("15:04")
	s.prune(today)

	if on, at := s.cfg.Settings.AutoExtract(); on && at == hhmm {
		s.dispatch(ctx, today, "extract", s.cfg.Jobs.AutoExtract)
	}
	if on, at := s.cfg.Settings.AutoUpdate(); on && at == hhmm {
		s.dispatch(ctx, today, "update", s.cfg.Jobs.AutoUpdate)
	}
}

// dispatch marks the job executed before submitting so a slow submit
// cannot race the next tick into a double run.
func (s *Scheduler) dispatch(ctx context.Context, today, name string, task taskrun.Task) {
	if task == nil {
		return
	}
	key := today + "_" + name
	if _, done := s.executed[key]; done {
		return
	}
	s.executed[key] = struct{}{}

	s.cfg.Logger.Info("schedule: dispatching", "job", name)
	if err := s.cfg.Runner.Submit(ctx, "auto_"+name, task, s.cfg.Callbacks); err != nil {
		if errors.Is(err, taskrun.ErrBusy) {
			// Lost the race to a manual task. Un-mark so the job can
			// still run later today if its minute comes around again.
			delete(s.executed, key)
			return
		}
		s.cfg.Logger.Error("schedule: submit", "job", name, "error", err)
	}
}

// prune drops executed markers from previous days so the set stays tiny.
func (s *Scheduler) prune(today string) {
	for key := range s.executed {
		if !strings.HasPrefix(key, today+"_") {
			delete(s.executed, key)
		}
	}
}
