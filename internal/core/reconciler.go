package core

import (
	"context"
	"time"

	"limscore/pkg/domain"
)

// Reconciler periodically re-derives occupied_count from the authoritative
// set of active SamplePositions (C2's recompute_occupancy_all) and retries
// publishing any MovementEntry the event bus never confirmed. It exists
// because adjustOccupancy's incremental root-ward maintenance and
// publishEvent's best-effort, post-commit delivery can both drift from
// ground truth under a crash between the commit and the bus write; the
// reconciler is the periodic correction pass for both.
type Reconciler struct {
	store     domain.PersistentStore
	publisher EventPublisher
	logger    Logger
	interval  time.Duration
	now       func() time.Time
}

// ReconcilerOption configures an optional Reconciler dependency.
type ReconcilerOption func(*Reconciler)

// WithReconcilerInterval overrides the default 5 minute reconciliation
// period.
func WithReconcilerInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReconcilerLogger attaches a Logger for reconciliation progress and
// error reporting.
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler builds a Reconciler against store, republishing unconfirmed
// movement entries through publisher (typically the same EventPublisher
// wired into the owning Service).
func NewReconciler(store domain.PersistentStore, publisher EventPublisher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		publisher: publisher,
		logger:    noopLogger{},
		interval:  5 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if publisher == nil {
		r.publisher = noopEventPublisher{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks, reconciling on r.interval until ctx is cancelled. It runs one
// pass immediately so a freshly started process corrects any drift left by
// its predecessor before the first tick.
func (r *Reconciler) Run(ctx context.Context) {
	r.runOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	if err := r.RecomputeOccupancyAll(ctx); err != nil {
		r.logger.Error("reconciler: recompute occupancy failed", "error", err)
	}
	n, err := r.RepublishUnconfirmed(ctx)
	if err != nil {
		r.logger.Error("reconciler: republish unconfirmed failed", "error", err)
	} else if n > 0 {
		r.logger.Info("reconciler: republished movement entries", "count", n)
	}
}

// RecomputeOccupancyAll implements C2's recompute_occupancy_all(): it
// derives every container's OccupiedCount from scratch by counting active
// SamplePositions at that container or any of its descendants, correcting
// any drift left by a crash mid-transaction or a bug in the incremental
// maintenance path.
func (r *Reconciler) RecomputeOccupancyAll(ctx context.Context) error {
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		snapshot := tx.Snapshot()
		counts := make(map[string]int)
		for _, pos := range snapshot.ListSamplePositions() {
			if !pos.Active() {
				continue
			}
			for id := pos.ContainerID; id != ""; {
				counts[id]++
				c, ok := snapshot.FindStorageContainer(id)
				if !ok || c.ParentContainerID == nil {
					break
				}
				id = *c.ParentContainerID
			}
		}
		for _, container := range snapshot.ListStorageContainers() {
			want := counts[container.ID]
			if container.OccupiedCount == want {
				continue
			}
			if _, err := tx.UpdateStorageContainer(container.ID, func(c *domain.StorageContainer) error {
				c.OccupiedCount = want
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// RepublishUnconfirmed scans the movement journal for entries never marked
// Published and attempts to publish a movement.recorded event for each,
// flipping Published on success. It returns the number of entries
// successfully republished.
func (r *Reconciler) RepublishUnconfirmed(ctx context.Context) (int, error) {
	pending := make([]domain.MovementEntry, 0)
	for _, m := range r.store.ListMovementEntries() {
		if !m.Published {
			pending = append(pending, m)
		}
	}
	republished := 0
	for _, m := range pending {
		event := domain.Event{
			EventType:   "movement.recorded",
			Source:      "reconciler",
			AggregateID: m.SampleID,
			Timestamp:   r.now(),
			Priority:    domain.PriorityNormal,
			Payload: map[string]any{
				"movement_id": m.ID, "sample_id": m.SampleID, "from": m.FromContainerID,
				"to": m.ToContainerID, "reason": m.Reason,
			},
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			continue
		}
		if _, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.UpdateMovementEntry(m.ID, func(entry *domain.MovementEntry) error {
				entry.Published = true
				return nil
			})
			return err
		}); err != nil {
			return republished, err
		}
		republished++
	}
	return republished, nil
}
