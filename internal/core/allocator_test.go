package core

import (
	"context"
	"testing"

	"limscore/pkg/domain"
)

func TestContainerPathAndLevel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, _ := seedBox(t, svc)

	path, err := svc.ContainerPath(ctx, boxID)
	if err != nil {
		t.Fatalf("container path: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected freezer/rack/box path of length 3, got %d", len(path))
	}
	if path[0].ContainerType != ContainerFreezer {
		t.Fatalf("expected root to be a freezer, got %s", path[0].ContainerType)
	}
	if path[len(path)-1].ID != boxID {
		t.Fatalf("expected path to end at the requested container")
	}

	level, err := svc.ContainerLevel(ctx, boxID)
	if err != nil {
		t.Fatalf("container level: %v", err)
	}
	if level != 2 {
		t.Fatalf("expected box level 2 (freezer=0), got %d", level)
	}
}

func TestContainerLevelPositionIsThree(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	level, err := svc.ContainerLevel(ctx, positions[0])
	if err != nil {
		t.Fatalf("container level: %v", err)
	}
	if level != 3 {
		t.Fatalf("expected position level 3 (freezer=0), got %d", level)
	}
}

func TestAssignSampleRejectsAncestorOverCapacity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	loc, _, err := svc.CreateStorageLocation(ctx, StorageLocation{Name: "Site", TemperatureZone: ZoneMinus80})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	freezer, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Freezer", ContainerType: ContainerFreezer, LocationID: &loc.ID, Capacity: 10,
	})
	if err != nil {
		t.Fatalf("create freezer: %v", err)
	}
	// The rack's own max_capacity (1) is the binding constraint: both
	// positions individually have room, but the rack does not.
	rack, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Rack", ContainerType: ContainerRack, ParentContainerID: &freezer.ID, Capacity: 1,
	})
	if err != nil {
		t.Fatalf("create rack: %v", err)
	}
	box, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Box", ContainerType: ContainerBox, ParentContainerID: &rack.ID, Capacity: 2,
		Dimensions: &Dimensions{Rows: 1, Cols: 2},
	})
	if err != nil {
		t.Fatalf("create box: %v", err)
	}
	pos1, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "P1", ContainerType: ContainerPosition, ParentContainerID: &box.ID, Capacity: 1,
		GridPosition: &GridPosition{Row: 0, Col: 0},
	})
	if err != nil {
		t.Fatalf("create position 1: %v", err)
	}
	pos2, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "P2", ContainerType: ContainerPosition, ParentContainerID: &box.ID, Capacity: 1,
		GridPosition: &GridPosition{Row: 0, Col: 1},
	})
	if err != nil {
		t.Fatalf("create position 2: %v", err)
	}

	s1, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-ANC0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 1: %v", err)
	}
	s2, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-ANC0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 2: %v", err)
	}

	if _, _, err := svc.AssignSample(ctx, s1.ID, pos1.ID, "tech1", nil); err != nil {
		t.Fatalf("assign s1: %v", err)
	}

	_, _, err = svc.AssignSample(ctx, s2.ID, pos2.ID, "tech1", nil)
	if err == nil {
		t.Fatalf("expected assigning into an over-capacity rack ancestor to be rejected")
	}
	capErr, ok := err.(domain.CapacityExceededError)
	if !ok {
		t.Fatalf("expected CapacityExceededError, got %v (%T)", err, err)
	}
	if capErr.ContainerID != rack.ID {
		t.Fatalf("expected the rack %s to be the offending container, got %s", rack.ID, capErr.ContainerID)
	}
}

func TestMoveSampleRejectsAncestorOverCapacity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	loc, _, err := svc.CreateStorageLocation(ctx, StorageLocation{Name: "Site", TemperatureZone: ZoneMinus80})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	freezer, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "Freezer", ContainerType: ContainerFreezer, LocationID: &loc.ID, Capacity: 10,
	})
	if err != nil {
		t.Fatalf("create freezer: %v", err)
	}
	rackA, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "RackA", ContainerType: ContainerRack, ParentContainerID: &freezer.ID, Capacity: 10,
	})
	if err != nil {
		t.Fatalf("create rack a: %v", err)
	}
	rackB, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "RackB", ContainerType: ContainerRack, ParentContainerID: &freezer.ID, Capacity: 1,
	})
	if err != nil {
		t.Fatalf("create rack b: %v", err)
	}
	boxA, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "BoxA", ContainerType: ContainerBox, ParentContainerID: &rackA.ID, Capacity: 1,
		Dimensions: &Dimensions{Rows: 1, Cols: 1},
	})
	if err != nil {
		t.Fatalf("create box a: %v", err)
	}
	boxB, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "BoxB", ContainerType: ContainerBox, ParentContainerID: &rackB.ID, Capacity: 2,
		Dimensions: &Dimensions{Rows: 1, Cols: 2},
	})
	if err != nil {
		t.Fatalf("create box b: %v", err)
	}
	fromPos, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "FromPos", ContainerType: ContainerPosition, ParentContainerID: &boxA.ID, Capacity: 1,
		GridPosition: &GridPosition{Row: 0, Col: 0},
	})
	if err != nil {
		t.Fatalf("create from position: %v", err)
	}
	existingPos, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "ExistingPos", ContainerType: ContainerPosition, ParentContainerID: &boxB.ID, Capacity: 1,
		GridPosition: &GridPosition{Row: 0, Col: 0},
	})
	if err != nil {
		t.Fatalf("create existing position: %v", err)
	}
	toPos, _, err := svc.CreateStorageContainer(ctx, StorageContainer{
		Name: "ToPos", ContainerType: ContainerPosition, ParentContainerID: &boxB.ID, Capacity: 1,
		GridPosition: &GridPosition{Row: 0, Col: 1},
	})
	if err != nil {
		t.Fatalf("create to position: %v", err)
	}

	moving, _, err := svc.CreateSample(ctx, Sample{Name: "Moving", Barcode: "LAB-ANC0000003"}, MintOptions{})
	if err != nil {
		t.Fatalf("create moving sample: %v", err)
	}
	resident, _, err := svc.CreateSample(ctx, Sample{Name: "Resident", Barcode: "LAB-ANC0000004"}, MintOptions{})
	if err != nil {
		t.Fatalf("create resident sample: %v", err)
	}

	if _, _, err := svc.AssignSample(ctx, moving.ID, fromPos.ID, "tech1", nil); err != nil {
		t.Fatalf("assign moving sample: %v", err)
	}
	// RackB is already at its max_capacity of 1 via the resident sample; a
	// move into BoxB's second position must be rejected even though BoxB and
	// ToPos both have room.
	if _, _, err := svc.AssignSample(ctx, resident.ID, existingPos.ID, "tech1", nil); err != nil {
		t.Fatalf("assign resident sample: %v", err)
	}

	_, _, err = svc.MoveSample(ctx, moving.ID, toPos.ID, "rebalance", "tech2")
	if err == nil {
		t.Fatalf("expected move into an over-capacity rack ancestor to be rejected")
	}
	capErr, ok := err.(domain.CapacityExceededError)
	if !ok {
		t.Fatalf("expected CapacityExceededError, got %v (%T)", err, err)
	}
	if capErr.ContainerID != rackB.ID {
		t.Fatalf("expected rack b %s to be the offending container, got %s", rackB.ID, capErr.ContainerID)
	}
}

func TestSubtreeListsDescendants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, positions := seedBox(t, svc)

	path, err := svc.ContainerPath(ctx, boxID)
	if err != nil {
		t.Fatalf("container path: %v", err)
	}
	freezerID := path[0].ID

	descendants, err := svc.Subtree(ctx, freezerID)
	if err != nil {
		t.Fatalf("subtree: %v", err)
	}
	// rack + box + 2 positions
	if len(descendants) != 4 {
		t.Fatalf("expected 4 descendants of the freezer, got %d", len(descendants))
	}

	boxDescendants, err := svc.Subtree(ctx, boxID)
	if err != nil {
		t.Fatalf("subtree of box: %v", err)
	}
	if len(boxDescendants) != len(positions) {
		t.Fatalf("expected %d position descendants of the box, got %d", len(positions), len(boxDescendants))
	}
}

func TestGridViewReflectsOccupancy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, positions := seedBox(t, svc)

	grid, err := svc.GridView(ctx, boxID)
	if err != nil {
		t.Fatalf("grid view: %v", err)
	}
	if len(grid) != 1 || len(grid[0]) != 2 {
		t.Fatalf("expected a 1x2 grid, got %dx%d", len(grid), len(grid[0]))
	}
	for _, cell := range grid[0] {
		if cell.Occupied {
			t.Fatalf("expected no cells occupied before any assignment")
		}
	}

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-GRID0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	grid, err = svc.GridView(ctx, boxID)
	if err != nil {
		t.Fatalf("grid view after assign: %v", err)
	}
	if !grid[0][0].Occupied || grid[0][0].SampleID != sample.ID {
		t.Fatalf("expected cell (0,0) occupied by %s, got %+v", sample.ID, grid[0][0])
	}
	if grid[0][1].Occupied {
		t.Fatalf("expected cell (0,1) to remain unoccupied")
	}
}
