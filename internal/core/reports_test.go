package core

import (
	"context"
	"testing"
)

func TestUtilizationReportCoversSubtreeAndCountsThresholds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boxID, positions := seedBox(t, svc)

	path, err := svc.ContainerPath(ctx, boxID)
	if err != nil {
		t.Fatalf("container path: %v", err)
	}
	freezerID := path[0].ID

	s1, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-UTL0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 1: %v", err)
	}
	s2, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-UTL0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 2: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, s1.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign s1: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, s2.ID, positions[1], "tech1", nil); err != nil {
		t.Fatalf("assign s2: %v", err)
	}

	report, err := svc.UtilizationReport(ctx, freezerID)
	if err != nil {
		t.Fatalf("utilization report: %v", err)
	}
	// freezer + rack + box + 2 positions
	if len(report.Entries) != 5 {
		t.Fatalf("expected 5 entries in the freezer's subtree, got %d", len(report.Entries))
	}
	if report.CriticalCount < 1 {
		t.Fatalf("expected at least one critical entry (full box), got %+v", report)
	}

	var boxEntry *UtilizationEntry
	for i := range report.Entries {
		if report.Entries[i].ContainerID == boxID {
			boxEntry = &report.Entries[i]
		}
	}
	if boxEntry == nil {
		t.Fatalf("expected the box to appear in the report")
	}
	if boxEntry.Level != 2 {
		t.Fatalf("expected the box at level 2 (freezer=0), got %d", boxEntry.Level)
	}
}

func TestStorageStatsAggregatesAcrossEntities(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, positions := seedBox(t, svc)

	sample, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-STS0000001"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, _, err := svc.CreateSequencingJob(ctx, SequencingJob{Name: "Run1", SampleIDs: []string{sample.ID}}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	stats, err := svc.StorageStats(ctx)
	if err != nil {
		t.Fatalf("storage stats: %v", err)
	}
	if stats.TotalLocations != 1 {
		t.Fatalf("expected 1 location, got %d", stats.TotalLocations)
	}
	if stats.ContainersByType[ContainerFreezer] != 1 || stats.ContainersByType[ContainerPosition] != 2 {
		t.Fatalf("unexpected container counts: %+v", stats.ContainersByType)
	}
	if stats.SamplesByState[SamplePending] != 1 {
		t.Fatalf("expected 1 pending sample, got %+v", stats.SamplesByState)
	}
	if stats.JobsByStatus[JobPending] != 1 {
		t.Fatalf("expected 1 pending job, got %+v", stats.JobsByStatus)
	}
	if stats.ActivePositions != 1 {
		t.Fatalf("expected 1 active position, got %d", stats.ActivePositions)
	}
}
