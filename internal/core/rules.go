package core

import "limscore/pkg/domain"

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// enforced on every transaction commit, independent of the allocator's own
// precondition checks.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewOccupancyCapacityRule())
	engine.Register(NewContainerHierarchyRule())
	engine.Register(NewSampleLifecycleRule())
	engine.Register(NewJobLifecycleRule())
	return engine
}
