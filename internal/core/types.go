package core

import "limscore/pkg/domain"

// Re-exported domain types so callers can depend on the core package alone
// rather than reaching into pkg/domain directly.
type (
	EntityType           = domain.EntityType
	Action               = domain.Action
	Severity             = domain.Severity
	StorageLocation      = domain.StorageLocation
	StorageContainer     = domain.StorageContainer
	Sample               = domain.Sample
	SamplePosition       = domain.SamplePosition
	MovementEntry        = domain.MovementEntry
	SequencingJob        = domain.SequencingJob
	Event                = domain.Event
	ContainerType        = domain.ContainerType
	ContainerStatus      = domain.ContainerStatus
	TemperatureZone      = domain.TemperatureZone
	SampleLifecycleState = domain.SampleLifecycleState
	PositionStatus       = domain.PositionStatus
	JobStatus            = domain.JobStatus
	EventPriority        = domain.EventPriority
	CustodyEvent         = domain.CustodyEvent
	SpecialRequirements  = domain.SpecialRequirements
	GridPosition         = domain.GridPosition
	Dimensions           = domain.Dimensions
)

// Canonical entity type identifiers.
const (
	EntityStorageLocation  = domain.EntityStorageLocation
	EntityStorageContainer = domain.EntityStorageContainer
	EntitySample           = domain.EntitySample
	EntitySamplePosition   = domain.EntitySamplePosition
	EntityMovementEntry    = domain.EntityMovementEntry
	EntitySequencingJob    = domain.EntitySequencingJob
)

// Rule severity levels.
const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

// Action semantic operation identifiers.
const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// Storage hierarchy container types.
const (
	ContainerFreezer  = domain.ContainerFreezer
	ContainerRack     = domain.ContainerRack
	ContainerBox      = domain.ContainerBox
	ContainerPosition = domain.ContainerPosition
)

// Container operational status.
const (
	ContainerActive         = domain.ContainerActive
	ContainerMaintenance    = domain.ContainerMaintenance
	ContainerDecommissioned = domain.ContainerDecommissioned
)

// Temperature zones.
const (
	ZoneMinus80  = domain.ZoneMinus80
	ZoneMinus20  = domain.ZoneMinus20
	ZonePlus4    = domain.ZonePlus4
	ZoneRoomTemp = domain.ZoneRoomTemp
	ZonePlus37   = domain.ZonePlus37
)

// Sample lifecycle states.
const (
	SamplePending      = domain.SamplePending
	SampleValidated    = domain.SampleValidated
	SampleInStorage    = domain.SampleInStorage
	SampleInSequencing = domain.SampleInSequencing
	SampleCompleted    = domain.SampleCompleted
	SampleDiscarded    = domain.SampleDiscarded
)

// Sample position status.
const (
	PositionActive    = domain.PositionActive
	PositionRetrieved = domain.PositionRetrieved
)

// Sequencing job ledger status.
const (
	JobPending   = domain.JobPending
	JobRunning   = domain.JobRunning
	JobCompleted = domain.JobCompleted
	JobFailed    = domain.JobFailed
	JobCancelled = domain.JobCancelled
)

// Event priorities.
const (
	PriorityLow      = domain.PriorityLow
	PriorityNormal   = domain.PriorityNormal
	PriorityHigh     = domain.PriorityHigh
	PriorityCritical = domain.PriorityCritical
)
