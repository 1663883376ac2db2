package core

import (
	"limscore/internal/infra/persistence/memory"
	"limscore/pkg/domain"
)

// NewMemoryStore constructs an in-memory store backed by the provided rules engine.
func NewMemoryStore(engine *domain.RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}
