package core

import (
	"context"
	"testing"

	"limscore/pkg/domain"
)

// TestDiscardSampleFromTerminalStateReturnsTypedError exercises S6's
// reverse-transition scenario through the service layer and asserts the
// concrete taxonomy error, not the commit-time RuleViolationError.
func TestDiscardSampleFromTerminalStateReturnsTypedError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-ERR0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.ValidateSample(ctx, sample.ID, "qc1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, _, err := svc.DispatchToSequencing(ctx, sample.ID, "tech2"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, _, err := svc.CompleteSequencing(ctx, sample.ID, "tech3"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, _, err = svc.DiscardSample(ctx, sample.ID, "tech4", "reverse from terminal state")
	if err == nil {
		t.Fatalf("expected discard from Completed to be rejected")
	}
	transErr, ok := err.(domain.InvalidStateTransitionError)
	if !ok {
		t.Fatalf("expected InvalidStateTransitionError, got %v (%T)", err, err)
	}
	if transErr.From != string(SampleCompleted) || transErr.To != string(SampleDiscarded) {
		t.Fatalf("expected transition Completed -> Discarded, got %s -> %s", transErr.From, transErr.To)
	}
}

// TestDispatchFromPendingSkippingStateReturnsTypedError asserts that jumping
// straight from Pending to InSequencing is rejected as an
// InvalidStateTransitionError before any mutation reaches the store.
func TestDispatchFromPendingSkippingStateReturnsTypedError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-ERR0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}

	_, _, err = svc.DispatchToSequencing(ctx, sample.ID, "tech1")
	if err == nil {
		t.Fatalf("expected Pending -> InSequencing to be rejected")
	}
	if _, ok := err.(domain.InvalidStateTransitionError); !ok {
		t.Fatalf("expected InvalidStateTransitionError, got %v (%T)", err, err)
	}

	reloaded, ok := svc.Store().GetSample(sample.ID)
	if !ok {
		t.Fatalf("expected sample to still exist")
	}
	if reloaded.LifecycleState != SamplePending {
		t.Fatalf("expected lifecycle state to remain Pending after rejected transition, got %s", reloaded.LifecycleState)
	}
}

// TestUpdateJobStatusRejectsInvalidTransitionWithTypedError covers the
// Running -> Pending regression through the service layer.
func TestUpdateJobStatusRejectsInvalidTransitionWithTypedError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, _, err := svc.CreateSequencingJob(ctx, SequencingJob{Name: "Run1"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, _, err := svc.UpdateJobStatus(ctx, job.ID, JobRunning); err != nil {
		t.Fatalf("transition to Running: %v", err)
	}

	_, _, err = svc.UpdateJobStatus(ctx, job.ID, JobPending)
	if err == nil {
		t.Fatalf("expected Running -> Pending to be rejected")
	}
	transErr, ok := err.(domain.InvalidStateTransitionError)
	if !ok {
		t.Fatalf("expected InvalidStateTransitionError, got %v (%T)", err, err)
	}
	if transErr.From != string(JobRunning) || transErr.To != string(JobPending) {
		t.Fatalf("expected transition Running -> Pending, got %s -> %s", transErr.From, transErr.To)
	}
}
