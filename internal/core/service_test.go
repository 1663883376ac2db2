package core

import (
	"context"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewInMemoryService(NewDefaultRulesEngine(), WithClock(ClockFunc(fixedNow)))
}

func seedBox(t *testing.T, svc *Service) (boxID string, positionIDs []string) {
	t.Helper()
	ctx := context.Background()

	loc, _, err := svc.CreateStorageLocation(ctx, StorageLocation{Name: "Main Site", TemperatureZone: ZoneMinus80})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	freezer, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Freezer A", ContainerType: ContainerFreezer, LocationID: &loc.ID, Capacity: 10,
	})
	if err != nil {
		t.Fatalf("create freezer: %v", err)
	}
	rack, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Rack 1", ContainerType: ContainerRack, ParentContainerID: &freezer.ID, Capacity: 10,
	})
	if err != nil {
		t.Fatalf("create rack: %v", err)
	}
	box, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Box 1", ContainerType: ContainerBox, ParentContainerID: &rack.ID, Capacity: 2,
		Dimensions: &Dimensions{Rows: 1, Cols: 2},
	})
	if err != nil {
		t.Fatalf("create box: %v", err)
	}
	boxID = box.ID

	for i := 0; i < 2; i++ {
		pos, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
			Name: "Position", ContainerType: ContainerPosition, ParentContainerID: &box.ID, Capacity: 1,
			GridPosition: &GridPosition{Row: 0, Col: i},
		})
		if err != nil {
			t.Fatalf("create position %d: %v", i, err)
		}
		positionIDs = append(positionIDs, pos.ID)
	}
	return boxID, positionIDs
}

func TestCreateSampleMintsUniqueBarcode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "Blood draw"}, MintOptions{SampleType: "BLD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.Barcode == "" {
		t.Fatalf("expected a minted barcode")
	}
	if sample.LifecycleState != SamplePending {
		t.Fatalf("expected default lifecycle state Pending, got %s", sample.LifecycleState)
	}
}

func TestCreateSampleRejectsDuplicateBarcode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-FIXED0001"}, MintOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-FIXED0001"}, MintOptions{}); err == nil {
		t.Fatalf("expected duplicate barcode to be rejected")
	}
}

func TestAssignMoveRetrieveSample(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-SEQ0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}

	placement, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if placement.ContainerID != positions[0] {
		t.Fatalf("expected placement in %s, got %s", positions[0], placement.ContainerID)
	}

	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[1], "tech1", nil); err == nil {
		t.Fatalf("expected second assign of an already-placed sample to fail")
	}

	moved, _, err := svc.MoveSample(ctx, sample.ID, positions[1], "rebalance", "tech2")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ContainerID != positions[1] {
		t.Fatalf("expected moved placement in %s, got %s", positions[1], moved.ContainerID)
	}
	if len(moved.ChainOfCustody) == 0 {
		t.Fatalf("expected chain of custody entries on moved placement")
	}

	if _, err := svc.RetrieveSample(ctx, sample.ID, "retrieved for shipment", "tech3"); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if _, err := svc.RetrieveSample(ctx, sample.ID, "again", "tech3"); err == nil {
		t.Fatalf("expected retrieve of an already-retrieved sample to fail")
	}
}

func TestAssignSampleRejectsOccupiedPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	s1, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-OCC0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 1: %v", err)
	}
	s2, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-OCC0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 2: %v", err)
	}

	if _, _, err := svc.AssignSample(ctx, s1.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign s1: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, s2.ID, positions[0], "tech1", nil); err == nil {
		t.Fatalf("expected assigning into an occupied position to fail")
	}
}

func TestSampleLifecycleCoordinator(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-LIFE0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.ValidateSample(ctx, sample.ID, "qc1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	updated, _, err := svc.UpdateSample(ctx, sample.ID, func(s *Sample) error {
		s.LifecycleState = SampleInStorage
		return nil
	})
	if err != nil {
		t.Fatalf("transition to InStorage: %v", err)
	}
	if updated.LifecycleState != SampleInStorage {
		t.Fatalf("expected InStorage, got %s", updated.LifecycleState)
	}

	dispatched, _, err := svc.DispatchToSequencing(ctx, sample.ID, "tech2")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dispatched.LifecycleState != SampleInSequencing {
		t.Fatalf("expected InSequencing, got %s", dispatched.LifecycleState)
	}

	completed, _, err := svc.CompleteSequencing(ctx, sample.ID, "tech3")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.LifecycleState != SampleCompleted {
		t.Fatalf("expected Completed, got %s", completed.LifecycleState)
	}

	if _, _, err := svc.DiscardSample(ctx, sample.ID, "tech4", "terminal state already reached"); err == nil {
		t.Fatalf("expected discard from the terminal Completed state to be rejected")
	}
}

func TestSequencingJobLedger(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-JOB00000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}

	job, _, err := svc.CreateSequencingJob(ctx, SequencingJob{Name: "Run1", SampleIDs: []string{sample.ID}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != JobPending {
		t.Fatalf("expected default status Pending, got %s", job.Status)
	}
	if job.SampleSheetPath == "" {
		t.Fatalf("expected a generated sample_sheet_path")
	}

	running, _, err := svc.UpdateJobStatus(ctx, job.ID, JobRunning)
	if err != nil {
		t.Fatalf("transition to Running: %v", err)
	}
	if running.Status != JobRunning {
		t.Fatalf("expected Running, got %s", running.Status)
	}

	if _, _, err := svc.UpdateJobStatus(ctx, job.ID, JobPending); err == nil {
		t.Fatalf("expected Running -> Pending to be rejected")
	}

	cancelled, _, err := svc.CancelSequencingJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != JobCancelled {
		t.Fatalf("expected Cancelled, got %s", cancelled.Status)
	}
}

func TestClassifyContainerReportsThresholds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, positions := seedBox(t, svc)

	status, err := svc.ClassifyContainer(ctx, boxID)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if status.Level != "ok" {
		t.Fatalf("expected ok before any placement, got %s", status.Level)
	}

	s1, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-CAP0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 1: %v", err)
	}
	s2, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-CAP0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 2: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, s1.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign s1: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, s2.ID, positions[1], "tech1", nil); err != nil {
		t.Fatalf("assign s2: %v", err)
	}

	status, err = svc.ClassifyContainer(ctx, boxID)
	if err != nil {
		t.Fatalf("classify after assign: %v", err)
	}
	if status.Level != "critical" {
		t.Fatalf("expected critical at 2/2 occupied, got %s (utilization %.2f)", status.Level, status.Utilization)
	}
}
