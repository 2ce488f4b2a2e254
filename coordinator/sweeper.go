package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
)

// Sweeper is a background worker that flags projects whose progress exceeded
// a deadline. A first deadline moves a quiet project to STALLED, where it is
// reported but can still resume on a late event; a second, longer deadline
// measured from the stall moves it to FAILED. The sweeper also purges
// terminal aggregates past their retention window.
type Sweeper struct {
	store       aggregate.Store
	deadletters deadletter.Log

	stallAfter time.Duration
	failAfter  time.Duration
	retention  time.Duration
	interval   time.Duration
	now        func() time.Time

	wg   sync.WaitGroup
	quit chan struct{}
}

// SweeperConfig carries the sweep deadlines.
type SweeperConfig struct {
	// StallAfter is how long a non-terminal project may sit without an
	// accepted event before being flagged STALLED.
	StallAfter time.Duration
	// FailAfter is how long a project may remain STALLED before FAILED.
	FailAfter time.Duration
	// Retention is how long terminal aggregates are kept before purging.
	Retention time.Duration
	// Interval is the sweep period.
	Interval time.Duration
}

// NewSweeper creates a Sweeper. Zero config fields get conservative defaults.
func NewSweeper(store aggregate.Store, deadletters deadletter.Log, cfg SweeperConfig) *Sweeper {
	if cfg.StallAfter <= 0 {
		cfg.StallAfter = 30 * time.Minute
	}
	if cfg.FailAfter <= 0 {
		cfg.FailAfter = 2 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	return &Sweeper{
		store:       store,
		deadletters: deadletters,
		stallAfter:  cfg.StallAfter,
		failAfter:   cfg.FailAfter,
		retention:   cfg.Retention,
		interval:    cfg.Interval,
		now:         time.Now,
		quit:        make(chan struct{}),
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start begins sweeping in a separate goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.InfoContext(ctx, "Stall sweeper started",
			"stallAfter", s.stallAfter, "failAfter", s.failAfter, "interval", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					slog.ErrorContext(ctx, "Stall sweep failed", "error", err)
				}
			case <-s.quit:
				slog.InfoContext(ctx, "Stall sweeper shutting down")
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, stall sweeper shutting down")
				return
			}
		}
	}()
}

// Sweep runs one pass over all live aggregates.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now()

	err := s.store.Range(ctx, func(snap aggregate.Snapshot) bool {
		switch {
		case snap.Status.Terminal():
			return true

		case snap.Status == aggregate.StatusStalled:
			if now.Sub(snap.StalledAt) < s.failAfter {
				return true
			}
			s.failExpired(ctx, snap, now)

		default:
			if now.Sub(snap.LastUpdatedAt) < s.stallAfter {
				return true
			}
			_, moved, err := s.store.Transition(
				ctx,
				snap.ProjectID,
				[]aggregate.Status{aggregate.StatusInProgress, aggregate.StatusReadyForAssembly, aggregate.StatusAssembling},
				aggregate.StatusStalled,
			)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to stall project", "projectID", snap.ProjectID, "error", err)
				return true
			}
			if moved {
				slog.WarnContext(ctx, "Project stalled awaiting missing stage inputs",
					"projectID", snap.ProjectID,
					"stages", snap.Stages.String(),
					"status", snap.Status.String(),
					"lastUpdatedAt", snap.LastUpdatedAt)
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	purged, err := s.store.Purge(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		slog.InfoContext(ctx, "Purged terminal aggregates past retention", "count", purged)
	}
	return nil
}

func (s *Sweeper) failExpired(ctx context.Context, snap aggregate.Snapshot, now time.Time) {
	_, moved, err := s.store.Transition(
		ctx,
		snap.ProjectID,
		[]aggregate.Status{aggregate.StatusStalled},
		aggregate.StatusFailed,
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fail expired project", "projectID", snap.ProjectID, "error", err)
		return
	}
	if !moved {
		return
	}
	slog.ErrorContext(ctx, "Stalled project exceeded failure deadline",
		"projectID", snap.ProjectID, "stalledAt", snap.StalledAt)
	if err := s.deadletters.Record(ctx, deadletter.Entry{
		RecordedAt: now,
		Kind:       deadletter.KindExpired,
		ProjectID:  snap.ProjectID,
		Reason:     "stalled project exceeded failure deadline",
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to dead-letter expired project", "projectID", snap.ProjectID, "error", err)
	}
}

// Stop gracefully stops the sweeper, waiting for an in-flight pass.
func (s *Sweeper) Stop() {
	close(s.quit)
	s.wg.Wait()
}
