package core

import (
	"context"
	"testing"

	"limscore/pkg/domain"
)

type recordingPublisher struct {
	events []domain.Event
}

func (r *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestRecomputeOccupancyAllFixesDrift(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-RCN0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Simulate drift: corrupt the box's occupied_count directly, bypassing
	// adjustOccupancy, as a crash mid-transaction might leave it.
	if _, err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStorageContainer(boxID, func(c *domain.StorageContainer) error {
			c.OccupiedCount = 2
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	reconciler := NewReconciler(svc.Store(), nil)
	if err := reconciler.RecomputeOccupancyAll(ctx); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	box, ok := svc.Store().GetStorageContainer(boxID)
	if !ok {
		t.Fatalf("expected box to exist")
	}
	if box.OccupiedCount != 1 {
		t.Fatalf("expected recompute to restore occupied_count to 1, got %d", box.OccupiedCount)
	}
}

func TestRepublishUnconfirmedMarksMovementsPublished(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-RCN0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	before := svc.Store().ListMovementEntries()
	if len(before) == 0 {
		t.Fatalf("expected at least one movement entry from the assign")
	}
	for _, m := range before {
		if m.Published {
			t.Fatalf("expected freshly recorded movement entries to start unpublished")
		}
	}

	pub := &recordingPublisher{}
	reconciler := NewReconciler(svc.Store(), pub)
	n, err := reconciler.RepublishUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if n != len(before) {
		t.Fatalf("expected %d republished, got %d", len(before), n)
	}
	if len(pub.events) != len(before) {
		t.Fatalf("expected %d events published, got %d", len(before), len(pub.events))
	}

	after := svc.Store().ListMovementEntries()
	for _, m := range after {
		if !m.Published {
			t.Fatalf("expected movement entry %s to be marked published", m.ID)
		}
	}

	n2, err := reconciler.RepublishUnconfirmed(ctx)
	if err != nil {
		t.Fatalf("second republish: %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected no entries left to republish, got %d", n2)
	}
}
