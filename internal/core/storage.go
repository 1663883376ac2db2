package core

import (
	"fmt"
	"os"

	"limscore/internal/infra/persistence/memory"
	"limscore/internal/infra/persistence/sqlite"
	"limscore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

// Supported storage driver identifiers.
const (
	// StorageMemory provides an in-memory ephemeral store (primarily tests).
	StorageMemory StorageDriver = "memory"
	// StorageSQLite provides an embedded SQLite-backed store.
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres provides a PostgreSQL-backed store.
	StoragePostgres StorageDriver = "postgres"
)

type (
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView exposing read-only state for observers.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstracting backing storage implementations.
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	LIMS_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LIMS_SQLITE_PATH: path to sqlite file (default ./lims.db)
//	LIMS_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *domain.RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("LIMS_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("LIMS_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("LIMS_POSTGRES_DSN")
		return NewPostgresStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
