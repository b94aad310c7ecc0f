package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/distcache/internal/logfields"
)

// Janitor prunes expired artifacts from a Store on a fixed interval. It backs
// `distcache prune --interval` on hosts whose hand-off directory outlives
// individual CI jobs.
type Janitor struct {
	scheduler gocron.Scheduler
	store     Store
	interval  time.Duration
	now       func() time.Time
}

// NewJanitor prepares a janitor; nothing runs until Start.
func NewJanitor(store Store, interval time.Duration) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("janitor interval must be > 0, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Janitor{scheduler: s, store: store, interval: interval, now: time.Now}, nil
}

// Start schedules the sweep, running the first one immediately. Overlapping
// sweeps are skipped rather than queued.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep, ctx),
		gocron.WithName("handoff-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule prune job: %w", err)
	}
	slog.Info("Starting hand-off janitor", slog.Duration("interval", j.interval))
	j.scheduler.Start()
	return nil
}

// Stop waits for a running sweep to finish and shuts the scheduler down.
func (j *Janitor) Stop() error {
	slog.Info("Stopping hand-off janitor")
	return j.scheduler.Shutdown()
}

// Run starts the janitor and blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	if err := j.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return j.Stop()
}

func (j *Janitor) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	removed, err := j.store.Prune(ctx, j.now())
	if err != nil {
		slog.Warn("Hand-off prune failed", logfields.Error(err))
		return
	}
	slog.Info("Hand-off prune finished", slog.Int("removed", removed), logfields.Since(start))
}
