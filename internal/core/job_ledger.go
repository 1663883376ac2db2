package core

import (
	"context"
	"fmt"
	"time"

	"limscore/pkg/domain"
)

// CreateSequencingJob implements C9: records a new job against a set of
// samples, defaulting Status to Pending and computing a deterministic
// sample_sheet_path when the caller leaves it unset.
func (s *Service) CreateSequencingJob(ctx context.Context, job domain.SequencingJob) (domain.SequencingJob, domain.Result, error) {
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	var created domain.SequencingJob
	res, dur, err := s.run(ctx, "create_sequencing_job", func(tx domain.Transaction) error {
		for _, sampleID := range job.SampleIDs {
			if _, ok := tx.FindSample(sampleID); !ok {
				return domain.NotFoundError{Entity: domain.EntitySample, ID: sampleID}
			}
		}
		if job.SampleSheetPath == "" {
			job.SampleSheetPath = sampleSheetPath(s.now(), len(job.SampleIDs))
		}
		var innerErr error
		created, innerErr = tx.CreateSequencingJob(job)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "create_sequencing_job", created.ID, dur)
		s.publishEvent(ctx, "job.created", created.ID, map[string]any{"job_id": created.ID, "sample_ids": created.SampleIDs, "status": string(created.Status)})
	}
	return created, res, err
}

// sampleSheetPath builds the deterministic ledger path
// /sample_sheets/job_<YYYYMMDDHHMMSS>_<len>.csv.
func sampleSheetPath(at time.Time, sampleCount int) string {
	return fmt.Sprintf("/sample_sheets/job_%s_%d.csv", at.Format("20060102150405"), sampleCount)
}

// UpdateJobStatus implements C9's status transitions, refusing an edge
// outside the job DAG with InvalidStateTransitionError before anything is
// written (the commit-time job_lifecycle rule checks again), and publishes
// job.status_changed.
func (s *Service) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) (domain.SequencingJob, domain.Result, error) {
	var fromStatus domain.JobStatus
	var updated domain.SequencingJob
	res, dur, err := s.run(ctx, "update_job_status", func(tx domain.Transaction) error {
		before, ok := tx.Snapshot().FindSequencingJob(jobID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySequencingJob, ID: jobID}
		}
		fromStatus = before.Status
		if !jobLifecycleMachine.allowed(string(fromStatus), string(status)) {
			return domain.InvalidStateTransitionError{
				Entity: domain.EntitySequencingJob, ID: jobID,
				From: string(fromStatus), To: string(status),
			}
		}

		var innerErr error
		updated, innerErr = tx.UpdateSequencingJob(jobID, func(job *domain.SequencingJob) error {
			job.Status = status
			return nil
		})
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "update_job_status", updated.ID, dur)
		s.publishEvent(ctx, "job.status_changed", updated.ID, map[string]any{"job_id": updated.ID, "from": string(fromStatus), "to": string(updated.Status), "at": s.now()})
	}
	return updated, res, err
}

// CancelSequencingJob soft-deletes a job by transitioning it to Cancelled.
// Allowed from Pending or Running per the job lifecycle DAG.
func (s *Service) CancelSequencingJob(ctx context.Context, jobID string) (domain.SequencingJob, domain.Result, error) {
	return s.UpdateJobStatus(ctx, jobID, domain.JobCancelled)
}

// GetSequencingJob is a read passthrough to the store.
func (s *Service) GetSequencingJob(id string) (domain.SequencingJob, bool) {
	return s.store.GetSequencingJob(id)
}

// ListSequencingJobs is a read passthrough to the store.
func (s *Service) ListSequencingJobs() []domain.SequencingJob {
	return s.store.ListSequencingJobs()
}
