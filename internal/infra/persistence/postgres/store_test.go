package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"limscore/internal/infra/persistence/memory"
	"limscore/internal/infra/persistence/postgres/testutil"
	"limscore/pkg/domain"
)

func newStubStore(t *testing.T, engine *domain.RulesEngine) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	store, err := NewStore("stub", engine)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestStoreCreatesAndPersistsAcrossNormalizedTables(t *testing.T) {
	store, conn := newStubStore(t, nil)
	ctx := context.Background()

	var sampleID, locationID, containerID string
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		loc, err := tx.CreateStorageLocation(domain.StorageLocation{Name: "East Wing", TemperatureZone: domain.ZoneMinus80})
		if err != nil {
			return err
		}
		locationID = loc.ID
		container, err := tx.CreateStorageContainer(domain.StorageContainer{
			Name: "Freezer A", ContainerType: domain.ContainerFreezer, LocationID: &loc.ID,
		})
		if err != nil {
			return err
		}
		containerID = container.ID
		sample, err := tx.CreateSample(domain.Sample{Name: "Plasma 1", Barcode: "BC-001"})
		if err != nil {
			return err
		}
		sampleID = sample.ID
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	if len(conn.Tables["storage_locations"]) != 1 {
		t.Fatalf("expected one row in storage_locations, got %d", len(conn.Tables["storage_locations"]))
	}
	if len(conn.Tables["storage_containers"]) != 1 {
		t.Fatalf("expected one row in storage_containers, got %d", len(conn.Tables["storage_containers"]))
	}
	if len(conn.Tables["samples"]) != 1 {
		t.Fatalf("expected one row in samples, got %d", len(conn.Tables["samples"]))
	}

	if _, ok := store.GetStorageLocation(locationID); !ok {
		t.Fatalf("expected location %q readable after commit", locationID)
	}
	if _, ok := store.GetStorageContainer(containerID); !ok {
		t.Fatalf("expected container %q readable after commit", containerID)
	}
	sample, ok := store.GetSample(sampleID)
	if !ok {
		t.Fatalf("expected sample %q readable after commit", sampleID)
	}
	if sample.Barcode != "BC-001" {
		t.Fatalf("expected barcode BC-001, got %q", sample.Barcode)
	}
	if got, ok := store.GetSampleByBarcode("BC-001"); !ok || got.ID != sampleID {
		t.Fatalf("expected GetSampleByBarcode to find %q", sampleID)
	}
}

func TestStoreRunInTransactionRollsBackOnBlockingViolation(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store, conn := newStubStore(t, engine)
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateStorageLocation(domain.StorageLocation{Name: "Blocked Site", TemperatureZone: domain.ZonePlus4})
		return err
	})
	if err == nil {
		t.Fatalf("expected blocking rule to reject the transaction")
	}
	if len(conn.Tables["storage_locations"]) != 0 {
		t.Fatalf("expected no rows persisted after a blocked transaction, got %d", len(conn.Tables["storage_locations"]))
	}
	if len(store.ListStorageLocations()) != 0 {
		t.Fatalf("expected no locations visible after a blocked transaction")
	}
}

func TestApplySnapshotDeltaOrdersContainerWritesByDepth(t *testing.T) {
	rec := &recordingExecQuerier{}
	now := time.Unix(0, 0).UTC()
	root := "root"
	mid := "mid"
	leaf := "leaf"

	before := memorySnapshotWithContainers(nil)
	after := memorySnapshotWithContainers(map[string]domain.StorageContainer{
		root: {Base: domain.Base{ID: root, CreatedAt: now, UpdatedAt: now}, Name: "Freezer", ContainerType: domain.ContainerFreezer, Status: domain.ContainerActive},
		mid:  {Base: domain.Base{ID: mid, CreatedAt: now, UpdatedAt: now}, Name: "Rack", ContainerType: domain.ContainerRack, ParentContainerID: strPtr(root), Status: domain.ContainerActive},
		leaf: {Base: domain.Base{ID: leaf, CreatedAt: now, UpdatedAt: now}, Name: "Box", ContainerType: domain.ContainerBox, ParentContainerID: strPtr(mid), Status: domain.ContainerActive},
	})

	if err := applySnapshotDelta(context.Background(), rec, before, after); err != nil {
		t.Fatalf("applySnapshotDelta: %v", err)
	}

	rootIdx := indexOfSubstring(rec.execs, root)
	midIdx := indexOfSubstring(rec.execs, mid)
	leafIdx := indexOfSubstring(rec.execs, leaf)
	if !(rootIdx < midIdx && midIdx < leafIdx) {
		t.Fatalf("expected container inserts ordered root, rack, box; got exec order %v", rec.execs)
	}
}

func TestApplySnapshotDeltaDeletesContainersDeepestFirst(t *testing.T) {
	rec := &recordingExecQuerier{}
	now := time.Unix(0, 0).UTC()
	root := "root"
	mid := "mid"
	leaf := "leaf"

	before := memorySnapshotWithContainers(map[string]domain.StorageContainer{
		root: {Base: domain.Base{ID: root, CreatedAt: now, UpdatedAt: now}, ContainerType: domain.ContainerFreezer, Status: domain.ContainerActive},
		mid:  {Base: domain.Base{ID: mid, CreatedAt: now, UpdatedAt: now}, ContainerType: domain.ContainerRack, ParentContainerID: strPtr(root), Status: domain.ContainerActive},
		leaf: {Base: domain.Base{ID: leaf, CreatedAt: now, UpdatedAt: now}, ContainerType: domain.ContainerBox, ParentContainerID: strPtr(mid), Status: domain.ContainerActive},
	})
	after := memorySnapshotWithContainers(nil)

	if err := applySnapshotDelta(context.Background(), rec, before, after); err != nil {
		t.Fatalf("applySnapshotDelta: %v", err)
	}

	rootIdx := indexOfSubstring(rec.execs, root)
	midIdx := indexOfSubstring(rec.execs, mid)
	leafIdx := indexOfSubstring(rec.execs, leaf)
	if !(leafIdx < midIdx && midIdx < rootIdx) {
		t.Fatalf("expected container deletes ordered box, rack, root; got exec order %v", rec.execs)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block-all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block-all", Severity: domain.SeverityBlock}}}, nil
}

// recordingExecQuerier records the id argument of every exec so ordering can
// be asserted without a real database. Its QueryContext is never exercised by
// applySnapshotDelta, which only issues writes.
type recordingExecQuerier struct {
	execs []string
}

func (r *recordingExecQuerier) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	if len(args) > 0 {
		if id, ok := args[0].(string); ok {
			r.execs = append(r.execs, id)
		}
	}
	return driverResult{}, nil
}

func (r *recordingExecQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, nil
}

type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 1, nil }

func memorySnapshotWithContainers(containers map[string]domain.StorageContainer) memory.Snapshot {
	return memory.Snapshot{Containers: containers}
}

func indexOfSubstring(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}

func strPtr(s string) *string { return &s }
