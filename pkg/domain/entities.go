// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by limscore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStorageLocation identifies a physical site record.
	EntityStorageLocation EntityType = "storage_location"
	// EntityStorageContainer identifies a hierarchy node (freezer/rack/box/position).
	EntityStorageContainer EntityType = "storage_container"
	// EntitySample identifies a sample record.
	EntitySample EntityType = "sample"
	// EntitySamplePosition identifies a placement record.
	EntitySamplePosition EntityType = "sample_position"
	// EntityMovementEntry identifies a chain-of-custody journal row.
	EntityMovementEntry EntityType = "movement_entry"
	// EntitySequencingJob identifies a sequencing job ledger row.
	EntitySequencingJob EntityType = "sequencing_job"
)

// ContainerType enumerates the levels of the storage hierarchy.
type ContainerType string

// Container types form a strict 4-level tree: freezer -> rack -> box -> position.
const (
	ContainerFreezer  ContainerType = "freezer"
	ContainerRack     ContainerType = "rack"
	ContainerBox      ContainerType = "box"
	ContainerPosition ContainerType = "position"
)

// ContainerStatus reflects operational availability of a container.
type ContainerStatus string

const (
	ContainerActive        ContainerStatus = "active"
	ContainerMaintenance   ContainerStatus = "maintenance"
	ContainerDecommissioned ContainerStatus = "decommissioned"
)

// TemperatureZone enumerates the discrete storage temperature categories.
// Zones propagate downward through the hierarchy when a child leaves its
// zone unspecified.
type TemperatureZone string

const (
	ZoneMinus80  TemperatureZone = "minus80"
	ZoneMinus20  TemperatureZone = "minus20"
	ZonePlus4    TemperatureZone = "plus4"
	ZoneRoomTemp TemperatureZone = "roomTemp"
	ZonePlus37   TemperatureZone = "plus37"
)

// SampleLifecycleState is the canonical sample lifecycle described in the
// coordinator's state machine.
type SampleLifecycleState string

const (
	SamplePending      SampleLifecycleState = "Pending"
	SampleValidated    SampleLifecycleState = "Validated"
	SampleInStorage    SampleLifecycleState = "InStorage"
	SampleInSequencing SampleLifecycleState = "InSequencing"
	SampleCompleted    SampleLifecycleState = "Completed"
	SampleDiscarded    SampleLifecycleState = "Discarded"
)

// PositionStatus reflects whether a SamplePosition row is the sample's
// current placement or a closed historical one.
type PositionStatus string

const (
	PositionActive    PositionStatus = "active"
	PositionRetrieved PositionStatus = "retrieved"
)

// JobStatus enumerates the sequencing job ledger's state machine.
type JobStatus string

const (
	JobPending   JobStatus = "Pending"
	JobRunning   JobStatus = "Running"
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
	JobCancelled JobStatus = "Cancelled"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GridPosition locates a position container within its parent box.
type GridPosition struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Dimensions captures the shape of a container's grid, when it has one.
type Dimensions struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Coordinates locates a storage location in physical space (building/room/etc).
type Coordinates struct {
	Building string `json:"building,omitempty"`
	Room     string `json:"room,omitempty"`
	Note     string `json:"note,omitempty"`
}

// StorageLocation represents a physical site that owns zero or more root
// (freezer) containers.
type StorageLocation struct {
	Base
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TemperatureZone TemperatureZone `json:"temperature_zone"`
	MaxCapacity     int             `json:"max_capacity"` // 0 = unbounded
	Coordinates     *Coordinates    `json:"coordinates,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// StorageContainer is a node in the storage hierarchy. Root containers
// (ParentContainerID == nil) must be of type freezer and must carry a
// LocationID. Position containers are always leaves.
type StorageContainer struct {
	Base
	Name              string          `json:"name"`
	ContainerType     ContainerType   `json:"container_type"`
	ParentContainerID *string         `json:"parent_container_id,omitempty"`
	LocationID        *string         `json:"location_id,omitempty"`
	GridPosition      *GridPosition   `json:"grid_position,omitempty"`
	Dimensions        *Dimensions     `json:"dimensions,omitempty"`
	Capacity          int             `json:"capacity"`
	OccupiedCount     int             `json:"occupied_count"`
	TemperatureZone   TemperatureZone `json:"temperature_zone,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	Status            ContainerStatus `json:"status"`
}

// Sample is the thing being tracked through the lab's physical and logical
// lifecycle. It is weakly referenced by SamplePosition.
type Sample struct {
	Base
	Name           string               `json:"name"`
	Barcode        string               `json:"barcode"`
	LifecycleState SampleLifecycleState `json:"lifecycle_state"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}

// CustodyEvent is one entry in a SamplePosition's chain_of_custody history.
type CustodyEvent struct {
	Action      string    `json:"action"` // assigned | moved | retrieved
	Actor       string    `json:"actor,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	FromID      string    `json:"from_container_id,omitempty"`
	ToID        string    `json:"to_container_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SpecialRequirements describes constraints a placement must satisfy.
type SpecialRequirements struct {
	RequiredZone TemperatureZone `json:"required_zone,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// SamplePosition is a placement record: a sample occupying a leaf container
// between AssignedAt and (if closed) RemovedAt.
type SamplePosition struct {
	Base
	SampleID             string                `json:"sample_id"`
	ContainerID          string                `json:"container_id"`
	PositionIdentifier   string                `json:"position_identifier,omitempty"`
	AssignedAt           time.Time             `json:"assigned_at"`
	AssignedBy           string                `json:"assigned_by,omitempty"`
	RemovedAt            *time.Time            `json:"removed_at,omitempty"`
	RemovedBy            string                `json:"removed_by,omitempty"`
	StorageConditions    string                `json:"storage_conditions,omitempty"`
	SpecialRequirements  *SpecialRequirements  `json:"special_requirements,omitempty"`
	ChainOfCustody       []CustodyEvent        `json:"chain_of_custody"`
	Status               PositionStatus        `json:"status"`
}

// Active reports whether this placement row is the sample's current one.
func (p SamplePosition) Active() bool { return p.RemovedAt == nil }

// MovementEntry is a denormalized, append-only, cross-sample audit row. The
// same event also lives embedded in the destination SamplePosition's
// chain_of_custody.
type MovementEntry struct {
	Base
	SampleID        string    `json:"sample_id"`
	Barcode         string    `json:"barcode"`
	FromContainerID string    `json:"from_container_id,omitempty"`
	ToContainerID   string    `json:"to_container_id,omitempty"`
	FromState       string    `json:"from_state,omitempty"`
	ToState         string    `json:"to_state"`
	Reason          string    `json:"reason,omitempty"`
	Actor           string    `json:"actor,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Notes           string    `json:"notes,omitempty"`
	Published       bool      `json:"published"`
}

// SequencingJob tracks a unit of downstream sequencing work against a set of
// samples. The core never executes sequencing itself; it records status only.
type SequencingJob struct {
	Base
	Name            string         `json:"name"`
	SampleIDs       []string       `json:"sample_ids"`
	SampleSheetPath string         `json:"sample_sheet_path"`
	Status          JobStatus      `json:"status"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// EventPriority ranks events for consumers that want to triage delivery.
type EventPriority string

const (
	PriorityLow      EventPriority = "Low"
	PriorityNormal   EventPriority = "Normal"
	PriorityHigh     EventPriority = "High"
	PriorityCritical EventPriority = "Critical"
)

// Event is the envelope published through the event bus (C7). EventType is
// dotted (`entity.action`) and determines the backing stream name.
type Event struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Source      string         `json:"source"`
	AggregateID string         `json:"aggregate_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Priority    EventPriority  `json:"priority"`
	Payload     map[string]any `json:"payload"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
