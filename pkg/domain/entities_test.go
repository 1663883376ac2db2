package domain

import "testing"

func TestResultMergeAndHasBlocking(t *testing.T) {
	var r Result
	r.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if r.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !r.HasBlocking() {
		t.Fatalf("expected blocking violation after merge")
	}
	if len(r.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(r.Violations))
	}
}

func TestResultMergeEmptyIsNoop(t *testing.T) {
	var r Result
	r.Merge(Result{})
	if r.Violations != nil {
		t.Fatalf("expected nil violations after merging empty result, got %v", r.Violations)
	}
}

func TestSamplePositionActive(t *testing.T) {
	p := SamplePosition{}
	if !p.Active() {
		t.Fatalf("position with nil RemovedAt should be active")
	}
	now := p.AssignedAt
	p.RemovedAt = &now
	if p.Active() {
		t.Fatalf("position with non-nil RemovedAt should not be active")
	}
}

func TestRuleViolationErrorMessage(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{{Rule: "x", Severity: SeverityBlock}}}}
	if err.Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected error message: %s", err.Error())
	}
}
