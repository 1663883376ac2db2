package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetriableClassifiesExternalUnavailableOnly(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"external unavailable", ExternalUnavailableError{Dependency: "postgres"}, true},
		{"wrapped external unavailable", fmt.Errorf("placing sample: %w", ExternalUnavailableError{Dependency: "redis"}), true},
		{"validation", ValidationError{Field: "name", Message: "required"}, false},
		{"not found", NotFoundError{Entity: EntitySample, ID: "s1"}, false},
		{"conflict", ConflictError{Entity: EntityStorageContainer, ID: "c1"}, false},
		{"cancelled", CancelledError{Operation: "place_sample"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retriable(tc.err); got != tc.want {
				t.Errorf("Retriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestExternalUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalUnavailableError{Dependency: "postgres", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestErrorMessagesNameOffendingEntity(t *testing.T) {
	nf := NotFoundError{Entity: EntityStorageContainer, ID: "box-1"}
	if nf.Error() != "storage_container box-1 not found" {
		t.Fatalf("unexpected message: %s", nf.Error())
	}

	po := PositionOccupied{ContainerID: "pos-1"}
	if po.Error() != "position pos-1 is already occupied" {
		t.Fatalf("unexpected message: %s", po.Error())
	}

	ist := InvalidStateTransitionError{Entity: EntitySample, ID: "s1", From: "Pending", To: "InStorage"}
	if ist.Error() != "sample s1: invalid transition Pending -> InStorage" {
		t.Fatalf("unexpected message: %s", ist.Error())
	}
}
