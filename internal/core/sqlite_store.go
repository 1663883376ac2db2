package core

import (
	"limscore/internal/infra/persistence/sqlite"
	"limscore/pkg/domain"
)

// NewSQLiteStore constructs a new SQLite-backed persistent store using the
// provided file path (may be empty for default) and rules engine.
func NewSQLiteStore(path string, engine *domain.RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}
