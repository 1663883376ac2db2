package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"limscore/pkg/domain"
)

func TestStorePersistsAndReloadsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lims.db")
	ctx := context.Background()

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var sampleID string
	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		loc, err := tx.CreateStorageLocation(domain.StorageLocation{Name: "Site", TemperatureZone: domain.ZoneMinus20})
		if err != nil {
			return err
		}
		_, err = tx.CreateStorageContainer(domain.StorageContainer{
			Name: "Freezer", ContainerType: domain.ContainerFreezer, LocationID: &loc.ID,
		})
		if err != nil {
			return err
		}
		sample, err := tx.CreateSample(domain.Sample{Name: "Sample 1", Barcode: "BC-500"})
		if err != nil {
			return err
		}
		sampleID = sample.ID
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen NewStore: %v", err)
	}
	defer func() { _ = reopened.DB().Close() }()

	if _, ok := reopened.GetSample(sampleID); !ok {
		t.Fatalf("expected sample %q to survive reload from %q", sampleID, path)
	}
	if len(reopened.ListStorageLocations()) != 1 {
		t.Fatalf("expected one location after reload")
	}
}

func TestStoreRollsBackWithoutPersistingOnBlockingViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lims.db")
	ctx := context.Background()

	engine := domain.NewRulesEngine()
	engine.Register(alwaysBlock{})
	s, err := NewStore(path, engine)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.DB().Close() }()

	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateStorageLocation(domain.StorageLocation{Name: "Site", TemperatureZone: domain.ZonePlus4})
		return err
	})
	if err == nil {
		t.Fatalf("expected blocking rule to reject the transaction")
	}
	if len(s.ListStorageLocations()) != 0 {
		t.Fatalf("expected no committed state after a blocked transaction")
	}
}

type alwaysBlock struct{}

func (alwaysBlock) Name() string { return "always-block" }

func (alwaysBlock) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "always-block", Severity: domain.SeverityBlock}}}, nil
}
