package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Every mutating C3-C6 operation runs
// inside exactly one Transaction; a rejected transaction leaves no trace.
type Transaction interface {
	Snapshot() TransactionView

	CreateStorageLocation(StorageLocation) (StorageLocation, error)
	UpdateStorageLocation(id string, mutator func(*StorageLocation) error) (StorageLocation, error)
	DeleteStorageLocation(id string) error

	CreateStorageContainer(StorageContainer) (StorageContainer, error)
	UpdateStorageContainer(id string, mutator func(*StorageContainer) error) (StorageContainer, error)
	DeleteStorageContainer(id string) error

	CreateSample(Sample) (Sample, error)
	UpdateSample(id string, mutator func(*Sample) error) (Sample, error)
	DeleteSample(id string) error

	CreateSamplePosition(SamplePosition) (SamplePosition, error)
	UpdateSamplePosition(id string, mutator func(*SamplePosition) error) (SamplePosition, error)

	CreateMovementEntry(MovementEntry) (MovementEntry, error)
	UpdateMovementEntry(id string, mutator func(*MovementEntry) error) (MovementEntry, error)

	CreateSequencingJob(SequencingJob) (SequencingJob, error)
	UpdateSequencingJob(id string, mutator func(*SequencingJob) error) (SequencingJob, error)

	FindStorageContainer(id string) (StorageContainer, bool)
	FindStorageLocation(id string) (StorageLocation, bool)
	FindSample(id string) (Sample, bool)
	FindSampleByBarcode(barcode string) (Sample, bool)
	FindActivePosition(sampleID string) (SamplePosition, bool)
	FindActivePositionByContainer(containerID string) (SamplePosition, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// for queries that do not need to mutate state.
type TransactionView interface {
	ListStorageLocations() []StorageLocation
	ListStorageContainers() []StorageContainer
	ListSamples() []Sample
	ListSamplePositions() []SamplePosition
	ListMovementEntries() []MovementEntry
	ListSequencingJobs() []SequencingJob

	FindStorageContainer(id string) (StorageContainer, bool)
	FindStorageLocation(id string) (StorageLocation, bool)
	FindSample(id string) (Sample, bool)
	FindSampleByBarcode(barcode string) (Sample, bool)
	FindSequencingJob(id string) (SequencingJob, bool)
	ChildContainers(parentID string) []StorageContainer
	FindActivePosition(sampleID string) (SamplePosition, bool)
	FindActivePositionByContainer(containerID string) (SamplePosition, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers (C3's
// read-mostly tree queries, C9's ledger listings, reconciler scans).
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetStorageLocation(id string) (StorageLocation, bool)
	ListStorageLocations() []StorageLocation
	GetStorageContainer(id string) (StorageContainer, bool)
	ListStorageContainers() []StorageContainer
	ChildContainers(parentID string) []StorageContainer
	GetSample(id string) (Sample, bool)
	GetSampleByBarcode(barcode string) (Sample, bool)
	ListSamples() []Sample
	ActivePosition(sampleID string) (SamplePosition, bool)
	ActivePositionByContainer(containerID string) (SamplePosition, bool)
	ListMovementEntries() []MovementEntry
	GetSequencingJob(id string) (SequencingJob, bool)
	ListSequencingJobs() []SequencingJob
}
