package core

import (
	"context"

	"limscore/pkg/domain"
)

// transitionSample is the shared body for every C8 lifecycle operation: load
// the sample, run the mutator to move its lifecycle_state (an edge outside
// the DAG is refused with InvalidStateTransitionError before anything is
// written; the commit-time sample_lifecycle rule checks again), append a
// MovementEntry recording the state change, and publish
// sample.state_changed on success.
func (s *Service) transitionSample(ctx context.Context, op, sampleID, actor, reason string, mutate func(*domain.Sample) error) (domain.Sample, domain.Result, error) {
	var fromState, toState domain.SampleLifecycleState
	var updated domain.Sample
	res, dur, err := s.run(ctx, op, func(tx domain.Transaction) error {
		before, ok := tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: sampleID}
		}
		fromState = before.LifecycleState

		probe := before
		if err := mutate(&probe); err != nil {
			return err
		}
		if !sampleLifecycleMachine.allowed(string(fromState), string(probe.LifecycleState)) {
			return domain.InvalidStateTransitionError{
				Entity: domain.EntitySample, ID: sampleID,
				From: string(fromState), To: string(probe.LifecycleState),
			}
		}

		var innerErr error
		updated, innerErr = tx.UpdateSample(sampleID, mutate)
		if innerErr != nil {
			return innerErr
		}
		toState = updated.LifecycleState

		_, innerErr = tx.CreateMovementEntry(domain.MovementEntry{
			SampleID:  sampleID,
			Barcode:   updated.Barcode,
			FromState: string(fromState),
			ToState:   string(toState),
			Reason:    reason,
			Actor:     actor,
			Timestamp: s.now(),
		})
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, op, updated.ID, dur)
		s.publishEvent(ctx, "sample.state_changed", updated.ID, map[string]any{
			"sample_id": updated.ID, "from_state": string(fromState), "to_state": string(toState), "actor": actor, "at": s.now(),
		})
	}
	return updated, res, err
}

// ValidateSample moves a sample from Pending to Validated.
func (s *Service) ValidateSample(ctx context.Context, sampleID, actor string) (domain.Sample, domain.Result, error) {
	return s.transitionSample(ctx, "validate_sample", sampleID, actor, "validated", func(sample *domain.Sample) error {
		sample.LifecycleState = domain.SampleValidated
		return nil
	})
}

// DiscardSample moves a sample to the terminal Discarded state. Allowed from
// Validated or InStorage; the lifecycle rule rejects any other origin.
func (s *Service) DiscardSample(ctx context.Context, sampleID, actor, reason string) (domain.Sample, domain.Result, error) {
	return s.transitionSample(ctx, "discard_sample", sampleID, actor, reason, func(sample *domain.Sample) error {
		sample.LifecycleState = domain.SampleDiscarded
		return nil
	})
}

// DispatchToSequencing moves a sample from InStorage to InSequencing.
func (s *Service) DispatchToSequencing(ctx context.Context, sampleID, actor string) (domain.Sample, domain.Result, error) {
	return s.transitionSample(ctx, "dispatch_sequencing", sampleID, actor, "dispatched to sequencing", func(sample *domain.Sample) error {
		sample.LifecycleState = domain.SampleInSequencing
		return nil
	})
}

// ReturnFromSequencing moves a sample back from InSequencing to InStorage,
// for example when a sequencing run fails and the physical sample is
// returned to its freezer.
func (s *Service) ReturnFromSequencing(ctx context.Context, sampleID, actor string) (domain.Sample, domain.Result, error) {
	return s.transitionSample(ctx, "return_sequencing", sampleID, actor, "returned from sequencing", func(sample *domain.Sample) error {
		sample.LifecycleState = domain.SampleInStorage
		return nil
	})
}

// CompleteSequencing moves a sample to the terminal Completed state from InSequencing.
func (s *Service) CompleteSequencing(ctx context.Context, sampleID, actor string) (domain.Sample, domain.Result, error) {
	return s.transitionSample(ctx, "complete_sequencing", sampleID, actor, "sequencing completed", func(sample *domain.Sample) error {
		sample.LifecycleState = domain.SampleCompleted
		return nil
	})
}
