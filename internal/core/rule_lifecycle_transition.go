package core

import (
	"context"
	"fmt"

	"limscore/pkg/domain"
)

type lifecycleMachine struct {
	entity    domain.EntityType
	label     string
	edges     map[string]map[string]struct{}
	extractor func(model any) (id string, state string, ok bool)
}

func (m lifecycleMachine) allowed(from, to string) bool {
	if from == to {
		return true
	}
	targets, ok := m.edges[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func edgeSet(targets ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return set
}

// NewSampleLifecycleRule returns the commit-time DAG check backing C8: a
// sample's lifecycle_state may only move along the edges
// Pending->Validated->InStorage<->InSequencing, with Discarded reachable (and
// terminal) from InStorage or Validated, and Completed reachable (and
// terminal) from InSequencing.
func NewSampleLifecycleRule() domain.Rule {
	return lifecycleTransitionRule{machine: sampleLifecycleMachine}
}

// NewJobLifecycleRule returns the commit-time DAG check backing C9: a job may
// move Pending->Running->{Completed,Failed}, and Cancelled is reachable from
// Pending or Running.
func NewJobLifecycleRule() domain.Rule {
	return lifecycleTransitionRule{machine: jobLifecycleMachine}
}

var sampleLifecycleMachine = lifecycleMachine{
	entity: domain.EntitySample,
	label:  "sample",
	edges: map[string]map[string]struct{}{
		string(domain.SamplePending):      edgeSet(string(domain.SampleValidated)),
		string(domain.SampleValidated):    edgeSet(string(domain.SampleInStorage), string(domain.SampleDiscarded)),
		string(domain.SampleInStorage):    edgeSet(string(domain.SampleInSequencing), string(domain.SampleDiscarded)),
		string(domain.SampleInSequencing): edgeSet(string(domain.SampleInStorage), string(domain.SampleCompleted)),
	},
	extractor: func(model any) (string, string, bool) {
		sample, ok := model.(domain.Sample)
		if !ok {
			return "", "", false
		}
		return sample.ID, string(sample.LifecycleState), true
	},
}

var jobLifecycleMachine = lifecycleMachine{
	entity: domain.EntitySequencingJob,
	label:  "sequencing_job",
	edges: map[string]map[string]struct{}{
		string(domain.JobPending): edgeSet(string(domain.JobRunning), string(domain.JobCancelled)),
		string(domain.JobRunning): edgeSet(string(domain.JobCompleted), string(domain.JobFailed), string(domain.JobCancelled)),
	},
	extractor: func(model any) (string, string, bool) {
		job, ok := model.(domain.SequencingJob)
		if !ok {
			return "", "", false
		}
		return job.ID, string(job.Status), true
	},
}

type lifecycleTransitionRule struct {
	machine lifecycleMachine
}

func (r lifecycleTransitionRule) Name() string {
	return fmt.Sprintf("%s_lifecycle", r.machine.label)
}

func (r lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != r.machine.entity || change.Before == nil || change.After == nil {
			continue
		}
		_, fromState, ok := r.machine.extractor(change.Before)
		if !ok {
			continue
		}
		id, toState, ok := r.machine.extractor(change.After)
		if !ok {
			continue
		}
		if !r.machine.allowed(fromState, toState) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s: invalid transition %s -> %s", r.machine.label, id, fromState, toState),
				Entity:   r.machine.entity,
				EntityID: id,
			})
		}
	}
	return res, nil
}
