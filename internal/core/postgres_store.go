package core

import (
	"limscore/internal/infra/persistence/postgres"
	"limscore/pkg/domain"
)

// NewPostgresStore constructs a Postgres-backed persistent store for the
// supplied DSN and rules engine.
func NewPostgresStore(dsn string, engine *domain.RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine)
}
