// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"limscore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	StorageLocation  = domain.StorageLocation
	StorageContainer = domain.StorageContainer
	Sample           = domain.Sample
	SamplePosition   = domain.SamplePosition
	MovementEntry    = domain.MovementEntry
	SequencingJob    = domain.SequencingJob
	Change           = domain.Change
	Result           = domain.Result
	RulesEngine      = domain.RulesEngine
	Transaction      = domain.Transaction
	TransactionView  = domain.TransactionView
	PersistentStore  = domain.PersistentStore
)

type memoryState struct {
	locations  map[string]StorageLocation
	containers map[string]StorageContainer
	samples    map[string]Sample
	positions  map[string]SamplePosition
	movements  map[string]MovementEntry
	jobs       map[string]SequencingJob
}

// Snapshot captures a point-in-time clone of the store state, suitable for
// JSON persistence by the sqlite backend or for test fixtures.
type Snapshot struct {
	Locations  map[string]StorageLocation  `json:"locations"`
	Containers map[string]StorageContainer `json:"containers"`
	Samples    map[string]Sample           `json:"samples"`
	Positions  map[string]SamplePosition   `json:"positions"`
	Movements  map[string]MovementEntry    `json:"movements"`
	Jobs       map[string]SequencingJob    `json:"jobs"`
}

func newMemoryState() memoryState {
	return memoryState{
		locations:  make(map[string]StorageLocation),
		containers: make(map[string]StorageContainer),
		samples:    make(map[string]Sample),
		positions:  make(map[string]SamplePosition),
		movements:  make(map[string]MovementEntry),
		jobs:       make(map[string]SequencingJob),
	}
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.locations {
		c.locations[k] = cloneLocation(v)
	}
	for k, v := range s.containers {
		c.containers[k] = cloneContainer(v)
	}
	for k, v := range s.samples {
		c.samples[k] = cloneSample(v)
	}
	for k, v := range s.positions {
		c.positions[k] = clonePosition(v)
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = cloneJob(v)
	}
	return c
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot(state.clone())
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState(s).clone()
}

func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Locations == nil {
		snapshot.Locations = map[string]StorageLocation{}
	}
	if snapshot.Containers == nil {
		snapshot.Containers = map[string]StorageContainer{}
	}
	if snapshot.Samples == nil {
		snapshot.Samples = map[string]Sample{}
	}
	if snapshot.Positions == nil {
		snapshot.Positions = map[string]SamplePosition{}
	}
	if snapshot.Movements == nil {
		snapshot.Movements = map[string]MovementEntry{}
	}
	if snapshot.Jobs == nil {
		snapshot.Jobs = map[string]SequencingJob{}
	}
	return snapshot
}

func cloneLocation(l StorageLocation) StorageLocation {
	out := l
	if l.Coordinates != nil {
		c := *l.Coordinates
		out.Coordinates = &c
	}
	out.Metadata = cloneAnyMap(l.Metadata)
	return out
}

func cloneContainer(c StorageContainer) StorageContainer {
	out := c
	if c.ParentContainerID != nil {
		id := *c.ParentContainerID
		out.ParentContainerID = &id
	}
	if c.LocationID != nil {
		id := *c.LocationID
		out.LocationID = &id
	}
	if c.GridPosition != nil {
		gp := *c.GridPosition
		out.GridPosition = &gp
	}
	if c.Dimensions != nil {
		d := *c.Dimensions
		out.Dimensions = &d
	}
	return out
}

func cloneSample(s Sample) Sample {
	out := s
	out.Metadata = cloneAnyMap(s.Metadata)
	return out
}

func clonePosition(p SamplePosition) SamplePosition {
	out := p
	if p.RemovedAt != nil {
		t := *p.RemovedAt
		out.RemovedAt = &t
	}
	if p.SpecialRequirements != nil {
		sr := *p.SpecialRequirements
		out.SpecialRequirements = &sr
	}
	out.ChainOfCustody = append([]domain.CustodyEvent(nil), p.ChainOfCustody...)
	return out
}

func cloneJob(j SequencingJob) SequencingJob {
	out := j
	out.SampleIDs = append([]string(nil), j.SampleIDs...)
	out.Metadata = cloneAnyMap(j.Metadata)
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store is the in-memory, transactional implementation of domain.PersistentStore.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string { return uuid.NewString() }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to a cloned copy of the
// store's state; it is committed only if the rules engine raises no
// blocking violation.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// transactionView exposes a read-only snapshot of state to rules and callers.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListStorageLocations() []StorageLocation {
	out := make([]StorageLocation, 0, len(v.state.locations))
	for _, l := range v.state.locations {
		out = append(out, cloneLocation(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListStorageContainers() []StorageContainer {
	out := make([]StorageContainer, 0, len(v.state.containers))
	for _, c := range v.state.containers {
		out = append(out, cloneContainer(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListSamples() []Sample {
	out := make([]Sample, 0, len(v.state.samples))
	for _, s := range v.state.samples {
		out = append(out, cloneSample(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListSamplePositions() []SamplePosition {
	out := make([]SamplePosition, 0, len(v.state.positions))
	for _, p := range v.state.positions {
		out = append(out, clonePosition(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListMovementEntries() []MovementEntry {
	out := make([]MovementEntry, 0, len(v.state.movements))
	for _, m := range v.state.movements {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (v transactionView) ListSequencingJobs() []SequencingJob {
	out := make([]SequencingJob, 0, len(v.state.jobs))
	for _, j := range v.state.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindStorageContainer(id string) (StorageContainer, bool) {
	c, ok := v.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

func (v transactionView) FindStorageLocation(id string) (StorageLocation, bool) {
	l, ok := v.state.locations[id]
	if !ok {
		return StorageLocation{}, false
	}
	return cloneLocation(l), true
}

func (v transactionView) FindSample(id string) (Sample, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

func (v transactionView) FindSampleByBarcode(barcode string) (Sample, bool) {
	for _, s := range v.state.samples {
		if s.Barcode == barcode {
			return cloneSample(s), true
		}
	}
	return Sample{}, false
}

func (v transactionView) FindSequencingJob(id string) (SequencingJob, bool) {
	j, ok := v.state.jobs[id]
	if !ok {
		return SequencingJob{}, false
	}
	return cloneJob(j), true
}

func (v transactionView) ChildContainers(parentID string) []StorageContainer {
	var out []StorageContainer
	for _, c := range v.state.containers {
		if c.ParentContainerID != nil && *c.ParentContainerID == parentID {
			out = append(out, cloneContainer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindActivePosition(sampleID string) (SamplePosition, bool) {
	for _, p := range v.state.positions {
		if p.SampleID == sampleID && p.Active() {
			return clonePosition(p), true
		}
	}
	return SamplePosition{}, false
}

func (v transactionView) FindActivePositionByContainer(containerID string) (SamplePosition, bool) {
	for _, p := range v.state.positions {
		if p.ContainerID == containerID && p.Active() {
			return clonePosition(p), true
		}
	}
	return SamplePosition{}, false
}

// RunInTransaction executes fn within a transactional copy of the store state,
// committing only when the registered rules raise no blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// FindStorageContainer exposes container lookup within the transaction scope.
func (tx *transaction) FindStorageContainer(id string) (StorageContainer, bool) {
	c, ok := tx.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

// FindStorageLocation exposes location lookup within the transaction scope.
func (tx *transaction) FindStorageLocation(id string) (StorageLocation, bool) {
	l, ok := tx.state.locations[id]
	if !ok {
		return StorageLocation{}, false
	}
	return cloneLocation(l), true
}

// FindSample exposes sample lookup within the transaction scope.
func (tx *transaction) FindSample(id string) (Sample, bool) {
	s, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

// FindSampleByBarcode exposes barcode-unique lookup within the transaction scope.
func (tx *transaction) FindSampleByBarcode(barcode string) (Sample, bool) {
	for _, s := range tx.state.samples {
		if s.Barcode == barcode {
			return cloneSample(s), true
		}
	}
	return Sample{}, false
}

// FindActivePosition exposes the sample's current placement, if any.
func (tx *transaction) FindActivePosition(sampleID string) (SamplePosition, bool) {
	for _, p := range tx.state.positions {
		if p.SampleID == sampleID && p.Active() {
			return clonePosition(p), true
		}
	}
	return SamplePosition{}, false
}

// FindActivePositionByContainer exposes the container's current occupant, if any.
func (tx *transaction) FindActivePositionByContainer(containerID string) (SamplePosition, bool) {
	for _, p := range tx.state.positions {
		if p.ContainerID == containerID && p.Active() {
			return clonePosition(p), true
		}
	}
	return SamplePosition{}, false
}

var validHierarchyEdges = map[domain.ContainerType]domain.ContainerType{
	domain.ContainerFreezer: domain.ContainerRack,
	domain.ContainerRack:    domain.ContainerBox,
	domain.ContainerBox:     domain.ContainerPosition,
}

func validateContainerHierarchy(state *memoryState, c StorageContainer) error {
	if c.ContainerType == "" {
		return errors.New("container requires container_type")
	}
	if c.ParentContainerID == nil {
		if c.ContainerType != domain.ContainerFreezer {
			return fmt.Errorf("root container %q must be of type freezer", c.ID)
		}
		if c.LocationID == nil || *c.LocationID == "" {
			return fmt.Errorf("root container %q requires a location_id", c.ID)
		}
		if _, ok := state.locations[*c.LocationID]; !ok {
			return fmt.Errorf("location %q not found for container", *c.LocationID)
		}
		return nil
	}
	parent, ok := state.containers[*c.ParentContainerID]
	if !ok {
		return fmt.Errorf("parent container %q not found", *c.ParentContainerID)
	}
	wantChild, ok := validHierarchyEdges[parent.ContainerType]
	if !ok || wantChild != c.ContainerType {
		return fmt.Errorf("invalid hierarchy edge %s -> %s", parent.ContainerType, c.ContainerType)
	}
	return nil
}

// CreateStorageLocation stores a new location within the transaction.
func (tx *transaction) CreateStorageLocation(l StorageLocation) (StorageLocation, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.locations[l.ID]; exists {
		return StorageLocation{}, fmt.Errorf("location %q already exists", l.ID)
	}
	if l.Name == "" {
		return StorageLocation{}, errors.New("location requires a name")
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.locations[l.ID] = cloneLocation(l)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionCreate, After: cloneLocation(l)})
	return cloneLocation(l), nil
}

// UpdateStorageLocation mutates an existing location.
func (tx *transaction) UpdateStorageLocation(id string, mutator func(*StorageLocation) error) (StorageLocation, error) {
	current, ok := tx.state.locations[id]
	if !ok {
		return StorageLocation{}, fmt.Errorf("location %q not found", id)
	}
	before := cloneLocation(current)
	if err := mutator(&current); err != nil {
		return StorageLocation{}, err
	}
	if current.Name == "" {
		return StorageLocation{}, errors.New("location requires a name")
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.locations[id] = cloneLocation(current)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: cloneLocation(current)})
	return cloneLocation(current), nil
}

// DeleteStorageLocation removes a location, refusing if it still owns containers.
func (tx *transaction) DeleteStorageLocation(id string) error {
	current, ok := tx.state.locations[id]
	if !ok {
		return fmt.Errorf("location %q not found", id)
	}
	for _, c := range tx.state.containers {
		if c.LocationID != nil && *c.LocationID == id {
			return fmt.Errorf("location %q still owns container %q", id, c.ID)
		}
	}
	delete(tx.state.locations, id)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionDelete, Before: cloneLocation(current)})
	return nil
}

// CreateStorageContainer stores a new container, enforcing the hierarchy invariant.
func (tx *transaction) CreateStorageContainer(c StorageContainer) (StorageContainer, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.containers[c.ID]; exists {
		return StorageContainer{}, fmt.Errorf("container %q already exists", c.ID)
	}
	if c.Name == "" {
		return StorageContainer{}, errors.New("container requires a name")
	}
	if err := validateContainerHierarchy(&tx.state, c); err != nil {
		return StorageContainer{}, err
	}
	if c.Capacity > 0 && (c.OccupiedCount < 0 || c.OccupiedCount > c.Capacity) {
		return StorageContainer{}, fmt.Errorf("container %q occupied_count %d out of range [0,%d]", c.ID, c.OccupiedCount, c.Capacity)
	}
	if c.Status == "" {
		c.Status = domain.ContainerActive
	}
	if c.TemperatureZone == "" && c.ParentContainerID != nil {
		if parent, ok := tx.state.containers[*c.ParentContainerID]; ok {
			c.TemperatureZone = parent.TemperatureZone
		}
	}
	if c.TemperatureZone == "" && c.ParentContainerID == nil && c.LocationID != nil {
		if loc, ok := tx.state.locations[*c.LocationID]; ok {
			c.TemperatureZone = loc.TemperatureZone
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.containers[c.ID] = cloneContainer(c)
	tx.recordChange(Change{Entity: domain.EntityStorageContainer, Action: domain.ActionCreate, After: cloneContainer(c)})
	return cloneContainer(c), nil
}

// UpdateStorageContainer mutates an existing container, re-validating the hierarchy and capacity invariants.
func (tx *transaction) UpdateStorageContainer(id string, mutator func(*StorageContainer) error) (StorageContainer, error) {
	current, ok := tx.state.containers[id]
	if !ok {
		return StorageContainer{}, fmt.Errorf("container %q not found", id)
	}
	before := cloneContainer(current)
	if err := mutator(&current); err != nil {
		return StorageContainer{}, err
	}
	if current.Name == "" {
		return StorageContainer{}, errors.New("container requires a name")
	}
	if err := validateContainerHierarchy(&tx.state, current); err != nil {
		return StorageContainer{}, err
	}
	if current.Capacity > 0 && (current.OccupiedCount < 0 || current.OccupiedCount > current.Capacity) {
		return StorageContainer{}, fmt.Errorf("container %q occupied_count %d out of range [0,%d]", id, current.OccupiedCount, current.Capacity)
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.containers[id] = cloneContainer(current)
	tx.recordChange(Change{Entity: domain.EntityStorageContainer, Action: domain.ActionUpdate, Before: before, After: cloneContainer(current)})
	return cloneContainer(current), nil
}

// DeleteStorageContainer removes a container, refusing while any child or live sample exists.
func (tx *transaction) DeleteStorageContainer(id string) error {
	current, ok := tx.state.containers[id]
	if !ok {
		return fmt.Errorf("container %q not found", id)
	}
	for _, c := range tx.state.containers {
		if c.ParentContainerID != nil && *c.ParentContainerID == id {
			return fmt.Errorf("container %q still has child %q", id, c.ID)
		}
	}
	if _, occupied := tx.FindActivePositionByContainer(id); occupied {
		return fmt.Errorf("container %q still holds an active sample", id)
	}
	delete(tx.state.containers, id)
	tx.recordChange(Change{Entity: domain.EntityStorageContainer, Action: domain.ActionDelete, Before: cloneContainer(current)})
	return nil
}

// CreateSample stores a new sample within the transaction.
func (tx *transaction) CreateSample(s Sample) (Sample, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.samples[s.ID]; exists {
		return Sample{}, fmt.Errorf("sample %q already exists", s.ID)
	}
	if s.Barcode == "" {
		return Sample{}, errors.New("sample requires a barcode")
	}
	if _, dup := tx.FindSampleByBarcode(s.Barcode); dup {
		return Sample{}, fmt.Errorf("barcode %q already in use", s.Barcode)
	}
	if s.LifecycleState == "" {
		s.LifecycleState = domain.SamplePending
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.samples[s.ID] = cloneSample(s)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionCreate, After: cloneSample(s)})
	return cloneSample(s), nil
}

// UpdateSample mutates an existing sample.
func (tx *transaction) UpdateSample(id string, mutator func(*Sample) error) (Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, fmt.Errorf("sample %q not found", id)
	}
	before := cloneSample(current)
	if err := mutator(&current); err != nil {
		return Sample{}, err
	}
	if current.Barcode == "" {
		return Sample{}, errors.New("sample requires a barcode")
	}
	if existing, dup := tx.FindSampleByBarcode(current.Barcode); dup && existing.ID != id {
		return Sample{}, fmt.Errorf("barcode %q already in use", current.Barcode)
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.samples[id] = cloneSample(current)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionUpdate, Before: before, After: cloneSample(current)})
	return cloneSample(current), nil
}

// DeleteSample removes a sample, refusing while it has an active placement.
func (tx *transaction) DeleteSample(id string) error {
	current, ok := tx.state.samples[id]
	if !ok {
		return fmt.Errorf("sample %q not found", id)
	}
	if _, active := tx.FindActivePosition(id); active {
		return fmt.Errorf("sample %q still has an active placement", id)
	}
	delete(tx.state.samples, id)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionDelete, Before: cloneSample(current)})
	return nil
}

// CreateSamplePosition inserts a new placement row. Uniqueness of active
// placements per sample/container is a cross-cutting invariant enforced by
// the occupancy rule, not here; the store only validates structural shape.
func (tx *transaction) CreateSamplePosition(p SamplePosition) (SamplePosition, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.positions[p.ID]; exists {
		return SamplePosition{}, fmt.Errorf("position %q already exists", p.ID)
	}
	if _, ok := tx.state.samples[p.SampleID]; !ok {
		return SamplePosition{}, fmt.Errorf("sample %q not found for position", p.SampleID)
	}
	container, ok := tx.state.containers[p.ContainerID]
	if !ok {
		return SamplePosition{}, fmt.Errorf("container %q not found for position", p.ContainerID)
	}
	if container.ContainerType != domain.ContainerPosition {
		return SamplePosition{}, fmt.Errorf("container %q is not a position", p.ContainerID)
	}
	if p.Status == "" {
		p.Status = domain.PositionActive
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.positions[p.ID] = clonePosition(p)
	tx.recordChange(Change{Entity: domain.EntitySamplePosition, Action: domain.ActionCreate, After: clonePosition(p)})
	return clonePosition(p), nil
}

// UpdateSamplePosition mutates an existing placement row (used to close it on move/retrieval).
func (tx *transaction) UpdateSamplePosition(id string, mutator func(*SamplePosition) error) (SamplePosition, error) {
	current, ok := tx.state.positions[id]
	if !ok {
		return SamplePosition{}, fmt.Errorf("position %q not found", id)
	}
	before := clonePosition(current)
	if err := mutator(&current); err != nil {
		return SamplePosition{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.positions[id] = clonePosition(current)
	tx.recordChange(Change{Entity: domain.EntitySamplePosition, Action: domain.ActionUpdate, Before: before, After: clonePosition(current)})
	return clonePosition(current), nil
}

// CreateMovementEntry appends a row to the cross-sample audit journal. Rows
// are never updated except to mark a publish acknowledgement (UpdateMovementEntry).
func (tx *transaction) CreateMovementEntry(m MovementEntry) (MovementEntry, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.movements[m.ID]; exists {
		return MovementEntry{}, fmt.Errorf("movement entry %q already exists", m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.movements[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityMovementEntry, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateMovementEntry mutates a journal row, used only by the reconciler to
// flip Published once the corresponding event is confirmed on the bus.
func (tx *transaction) UpdateMovementEntry(id string, mutator func(*MovementEntry) error) (MovementEntry, error) {
	current, ok := tx.state.movements[id]
	if !ok {
		return MovementEntry{}, fmt.Errorf("movement entry %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return MovementEntry{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.movements[id] = current
	tx.recordChange(Change{Entity: domain.EntityMovementEntry, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateSequencingJob stores a new job within the transaction.
func (tx *transaction) CreateSequencingJob(j SequencingJob) (SequencingJob, error) {
	if j.ID == "" {
		j.ID = tx.store.newID()
	}
	if _, exists := tx.state.jobs[j.ID]; exists {
		return SequencingJob{}, fmt.Errorf("job %q already exists", j.ID)
	}
	if j.Name == "" {
		return SequencingJob{}, errors.New("job requires a name")
	}
	for _, sid := range j.SampleIDs {
		if _, ok := tx.state.samples[sid]; !ok {
			return SequencingJob{}, fmt.Errorf("sample %q not found for job", sid)
		}
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	j.CreatedAt = tx.now
	j.UpdatedAt = tx.now
	tx.state.jobs[j.ID] = cloneJob(j)
	tx.recordChange(Change{Entity: domain.EntitySequencingJob, Action: domain.ActionCreate, After: cloneJob(j)})
	return cloneJob(j), nil
}

// UpdateSequencingJob mutates an existing job.
func (tx *transaction) UpdateSequencingJob(id string, mutator func(*SequencingJob) error) (SequencingJob, error) {
	current, ok := tx.state.jobs[id]
	if !ok {
		return SequencingJob{}, fmt.Errorf("job %q not found", id)
	}
	before := cloneJob(current)
	if err := mutator(&current); err != nil {
		return SequencingJob{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.jobs[id] = cloneJob(current)
	tx.recordChange(Change{Entity: domain.EntitySequencingJob, Action: domain.ActionUpdate, Before: before, After: cloneJob(current)})
	return cloneJob(current), nil
}

// GetStorageLocation returns a location outside any transaction.
func (s *Store) GetStorageLocation(id string) (StorageLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	if !ok {
		return StorageLocation{}, false
	}
	return cloneLocation(l), true
}

// ListStorageLocations returns all locations outside any transaction.
func (s *Store) ListStorageLocations() []StorageLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListStorageLocations()
}

// GetStorageContainer returns a container outside any transaction.
func (s *Store) GetStorageContainer(id string) (StorageContainer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.containers[id]
	if !ok {
		return StorageContainer{}, false
	}
	return cloneContainer(c), true
}

// ListStorageContainers returns all containers outside any transaction.
func (s *Store) ListStorageContainers() []StorageContainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListStorageContainers()
}

// ChildContainers returns the direct children of parentID outside any transaction.
func (s *Store) ChildContainers(parentID string) []StorageContainer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ChildContainers(parentID)
}

// GetSample returns a sample outside any transaction.
func (s *Store) GetSample(id string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(sm), true
}

// GetSampleByBarcode returns a sample by its unique barcode outside any transaction.
func (s *Store) GetSampleByBarcode(barcode string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindSampleByBarcode(barcode)
}

// ListSamples returns all samples outside any transaction.
func (s *Store) ListSamples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSamples()
}

// ActivePosition returns the sample's current placement outside any transaction.
func (s *Store) ActivePosition(sampleID string) (SamplePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindActivePosition(sampleID)
}

// ActivePositionByContainer returns the container's current occupant outside any transaction.
func (s *Store) ActivePositionByContainer(containerID string) (SamplePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindActivePositionByContainer(containerID)
}

// ListMovementEntries returns the full journal outside any transaction.
func (s *Store) ListMovementEntries() []MovementEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListMovementEntries()
}

// GetSequencingJob returns a job outside any transaction.
func (s *Store) GetSequencingJob(id string) (SequencingJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.state.jobs[id]
	if !ok {
		return SequencingJob{}, false
	}
	return cloneJob(j), true
}

// ListSequencingJobs returns all jobs outside any transaction.
func (s *Store) ListSequencingJobs() []SequencingJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSequencingJobs()
}
