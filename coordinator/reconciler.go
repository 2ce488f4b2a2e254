package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// Reconciler re-derives owed coordination triggers from durable aggregate
// state. Two crash windows exist around every forward step: before the
// status transition (stage flags committed, status unchanged, and the
// redelivered event is dedup-discarded without re-evaluation) and after it
// (status advanced, trigger never published). The reconciler closes both by
// recomputing decisions from stage flags and status, never from in-memory
// intent. Downstream consumers deduplicate, so a rare double send is
// harmless.
type Reconciler struct {
	coordinator *Coordinator
	store       aggregate.Store
	interval    time.Duration

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewReconciler creates a Reconciler sweeping at the given interval.
func NewReconciler(coordinator *Coordinator, store aggregate.Store, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		coordinator: coordinator,
		store:       store,
		interval:    interval,
		quit:        make(chan struct{}),
	}
}

// Start begins the reconciliation loop in a separate goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.InfoContext(ctx, "Trigger reconciler started", "interval", r.interval)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.Reconcile(ctx); err != nil {
					slog.ErrorContext(ctx, "Trigger reconciliation failed", "error", err)
				}
			case <-r.quit:
				slog.InfoContext(ctx, "Trigger reconciler shutting down")
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, trigger reconciler shutting down")
				return
			}
		}
	}()
}

// Reconcile runs one pass over all live aggregates.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	return r.store.Range(ctx, func(snap aggregate.Snapshot) bool {
		if snap.Status.Terminal() {
			return true
		}

		// Re-run the transition rules first: stage flags that committed
		// without their transition still advance here. The CAS guards make
		// this a no-op for projects that already moved.
		if err := r.coordinator.Evaluate(ctx, snap); err != nil {
			slog.ErrorContext(ctx, "Failed to re-evaluate aggregate",
				"projectID", snap.ProjectID, "error", err)
			return true
		}

		fresh, err := r.store.GetStatus(ctx, snap.ProjectID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reload aggregate",
				"projectID", snap.ProjectID, "error", err)
			return true
		}

		switch fresh.Status {
		case aggregate.StatusReadyForAssembly:
			if fresh.TriggerSent(event.TypeAssemblyRequested) {
				return true
			}
			slog.WarnContext(ctx, "Resending missing assembly trigger", "projectID", fresh.ProjectID)
			if err := r.coordinator.requestAssembly(ctx, fresh); err != nil {
				slog.ErrorContext(ctx, "Failed to resend assembly trigger",
					"projectID", fresh.ProjectID, "error", err)
			}
		case aggregate.StatusAssembling:
			if fresh.TriggerSent(event.TypePublishRequested) {
				return true
			}
			slog.WarnContext(ctx, "Resending missing publication trigger", "projectID", fresh.ProjectID)
			if err := r.coordinator.requestPublication(ctx, fresh); err != nil {
				slog.ErrorContext(ctx, "Failed to resend publication trigger",
					"projectID", fresh.ProjectID, "error", err)
			}
		}
		return true
	})
}

// Stop gracefully stops the reconciler, waiting for an in-flight pass.
func (r *Reconciler) Stop() {
	close(r.quit)
	r.wg.Wait()
}
