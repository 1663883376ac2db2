package core

import (
	"context"
	"time"

	"limscore/pkg/domain"
)

// Clock exposes time retrieval used by the service for deterministic binding.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now returns the current time for the function-based clock.
func (fn ClockFunc) Now() time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn().UTC()
}

// Logger abstracts structured logging used by the service layer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus describes the outcome of a service operation for audit trail entries.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures structured audit metadata for service operations.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder records audit entries emitted by service operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation timings and success results.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan represents an in-flight tracing span.
type TraceSpan interface {
	End(err error)
}

// Tracer starts tracing spans for service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// EventPublisher delivers domain events to the bus after a transaction
// commits. Publication happens strictly after commit per the at-least-once
// boundary: callers may observe persisted state before the event arrives,
// never the reverse.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopEventPublisher struct{}

func (noopEventPublisher) Publish(context.Context, domain.Event) error { return nil }

// ServiceOption configures optional dependencies for the Service constructor.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock             Clock
	logger            Logger
	audit             AuditRecorder
	metrics           MetricsRecorder
	tracer            Tracer
	publisher         EventPublisher
	barcodePrefix     string
	barcodeSeparator  string
	barcodeMinLength  int
	warningThreshold  float64
	criticalThreshold float64
}

// WithClock overrides the default clock used by the service.
func WithClock(clock Clock) ServiceOption {
	return func(opts *serviceOptions) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

// WithLogger injects a logger used by the service.
func WithLogger(logger Logger) ServiceOption {
	return func(opts *serviceOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithAuditRecorder injects an audit recorder used to track service operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(opts *serviceOptions) {
		if recorder != nil {
			opts.audit = recorder
		}
	}
}

// WithMetricsRecorder injects a metrics recorder used to observe operation timings.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(opts *serviceOptions) {
		if recorder != nil {
			opts.metrics = recorder
		}
	}
}

// WithTracer injects a tracer used to create spans for service operations.
func WithTracer(tracer Tracer) ServiceOption {
	return func(opts *serviceOptions) {
		if tracer != nil {
			opts.tracer = tracer
		}
	}
}

// WithEventPublisher injects the bus used to publish domain events after commit.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(opts *serviceOptions) {
		if publisher != nil {
			opts.publisher = publisher
		}
	}
}

// WithBarcodeFormat overrides the minter's prefix, separator, and minimum length.
func WithBarcodeFormat(prefix, separator string, minLength int) ServiceOption {
	return func(opts *serviceOptions) {
		opts.barcodePrefix = prefix
		opts.barcodeSeparator = separator
		opts.barcodeMinLength = minLength
	}
}

// WithCapacityThresholds overrides the warning/critical utilization ratios
// used to classify container occupancy.
func WithCapacityThresholds(warning, critical float64) ServiceOption {
	return func(opts *serviceOptions) {
		if warning > 0 {
			opts.warningThreshold = warning
		}
		if critical > 0 {
			opts.criticalThreshold = critical
		}
	}
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:             ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:            noopLogger{},
		audit:             noopAuditRecorder{},
		metrics:           noopMetricsRecorder{},
		tracer:            noopTracer{},
		publisher:         noopEventPublisher{},
		barcodePrefix:     "LAB",
		barcodeSeparator:  "-",
		barcodeMinLength:  10,
		warningThreshold:  0.80,
		criticalThreshold: 0.95,
	}
}

// Service orchestrates transactional operations over the storage hierarchy,
// sample lifecycle, and sequencing job ledger.
type Service struct {
	store   domain.PersistentStore
	engine  *domain.RulesEngine
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	pub     EventPublisher
	minter  *Minter

	warningThreshold  float64
	criticalThreshold float64
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	if store == nil {
		panic("core: service requires a persistent store")
	}
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	svc := &Service{
		store:             store,
		clock:             options.clock,
		logger:            options.logger,
		audit:             options.audit,
		metrics:           options.metrics,
		tracer:            options.tracer,
		pub:               options.publisher,
		warningThreshold:  options.warningThreshold,
		criticalThreshold: options.criticalThreshold,
	}
	svc.engine = extractRulesEngine(store)
	svc.now = selectNowFunc(store, svc.clock)
	svc.minter = NewMinter(options.barcodePrefix, options.barcodeSeparator, options.barcodeMinLength, svc.now)
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	store := NewMemoryStore(engine)
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Minter exposes the barcode minter backing C1 for callers that need direct
// validate/parse access outside a transactional operation.
func (s *Service) Minter() *Minter {
	return s.minter
}

// CreateStorageLocation persists a new physical site.
func (s *Service) CreateStorageLocation(ctx context.Context, location domain.StorageLocation) (domain.StorageLocation, domain.Result, error) {
	var created domain.StorageLocation
	res, dur, err := s.run(ctx, "create_storage_location", func(tx domain.Transaction) error {
		var innerErr error
		created, innerErr = tx.CreateStorageLocation(location)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "create_storage_location", created.ID, dur)
	}
	return created, res, err
}

// UpdateStorageLocation mutates a location.
func (s *Service) UpdateStorageLocation(ctx context.Context, id string, mutator func(*domain.StorageLocation) error) (domain.StorageLocation, domain.Result, error) {
	var updated domain.StorageLocation
	res, dur, err := s.run(ctx, "update_storage_location", func(tx domain.Transaction) error {
		var innerErr error
		updated, innerErr = tx.UpdateStorageLocation(id, mutator)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "update_storage_location", updated.ID, dur)
	}
	return updated, res, err
}

// DeleteStorageLocation removes a location.
func (s *Service) DeleteStorageLocation(ctx context.Context, id string) (domain.Result, error) {
	res, dur, err := s.run(ctx, "delete_storage_location", func(tx domain.Transaction) error {
		return tx.DeleteStorageLocation(id)
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "delete_storage_location", id, dur)
	}
	return res, err
}

// CreateStorageContainer persists a new hierarchy node. Hierarchy, leaf, and
// zone invariants are enforced by the container_hierarchy rule on commit.
func (s *Service) CreateStorageContainer(ctx context.Context, container domain.StorageContainer) (domain.StorageContainer, domain.Result, error) {
	var created domain.StorageContainer
	res, dur, err := s.run(ctx, "create_storage_container", func(tx domain.Transaction) error {
		var innerErr error
		created, innerErr = tx.CreateStorageContainer(container)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "create_storage_container", created.ID, dur)
		s.publishEvent(ctx, "container.created", created.ID, map[string]any{"container_id": created.ID})
	}
	return created, res, err
}

// UpdateStorageContainer mutates a hierarchy node.
func (s *Service) UpdateStorageContainer(ctx context.Context, id string, mutator func(*domain.StorageContainer) error) (domain.StorageContainer, domain.Result, error) {
	var updated domain.StorageContainer
	res, dur, err := s.run(ctx, "update_storage_container", func(tx domain.Transaction) error {
		var innerErr error
		updated, innerErr = tx.UpdateStorageContainer(id, mutator)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "update_storage_container", updated.ID, dur)
		s.publishEvent(ctx, "container.updated", updated.ID, map[string]any{"container_id": updated.ID})
	}
	return updated, res, err
}

// DeleteStorageContainer removes a hierarchy node. The store implementation
// is expected to refuse deletion while children or live samples remain.
func (s *Service) DeleteStorageContainer(ctx context.Context, id string) (domain.Result, error) {
	res, dur, err := s.run(ctx, "delete_storage_container", func(tx domain.Transaction) error {
		return tx.DeleteStorageContainer(id)
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "delete_storage_container", id, dur)
		s.publishEvent(ctx, "container.deleted", id, map[string]any{"container_id": id})
	}
	return res, err
}

// CreateSample mints a barcode (unless one is supplied) and persists a new
// sample in the Pending state.
func (s *Service) CreateSample(ctx context.Context, sample domain.Sample, mintOpts MintOptions) (domain.Sample, domain.Result, error) {
	if sample.LifecycleState == "" {
		sample.LifecycleState = domain.SamplePending
	}
	var created domain.Sample
	res, dur, err := s.run(ctx, "create_sample", func(tx domain.Transaction) error {
		if sample.Barcode == "" {
			barcode, mintErr := s.mintUniqueBarcode(tx, mintOpts)
			if mintErr != nil {
				return mintErr
			}
			sample.Barcode = barcode
		} else if err := s.minter.Validate(sample.Barcode); err != nil {
			return err
		}
		if _, exists := tx.FindSampleByBarcode(sample.Barcode); exists {
			return domain.ConflictError{Entity: domain.EntitySample, ID: sample.Barcode, Message: "barcode already in use"}
		}
		var innerErr error
		created, innerErr = tx.CreateSample(sample)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "create_sample", created.ID, dur)
	}
	return created, res, err
}

// mintUniqueBarcode retries minting against both the in-process reservation
// set and the persistence layer's barcode index, per C1's collision policy.
func (s *Service) mintUniqueBarcode(view domain.TransactionView, opts MintOptions) (string, error) {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		candidate, err := s.minter.Mint(opts)
		if err != nil {
			return "", err
		}
		if _, exists := view.FindSampleByBarcode(candidate); !exists {
			return candidate, nil
		}
		s.minter.Release(candidate)
	}
	return "", domain.ExhaustedError{Operation: "mint_barcode", Attempts: maxMintAttempts}
}

// UpdateSample mutates a sample's non-lifecycle fields directly. Lifecycle
// transitions must go through the Service's C8 coordinator methods so the
// lifecycle DAG rule and journal stay authoritative.
func (s *Service) UpdateSample(ctx context.Context, id string, mutator func(*domain.Sample) error) (domain.Sample, domain.Result, error) {
	var updated domain.Sample
	res, dur, err := s.run(ctx, "update_sample", func(tx domain.Transaction) error {
		var innerErr error
		updated, innerErr = tx.UpdateSample(id, mutator)
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "update_sample", updated.ID, dur)
	}
	return updated, res, err
}

// DeleteSample removes a sample record.
func (s *Service) DeleteSample(ctx context.Context, id string) (domain.Result, error) {
	res, dur, err := s.run(ctx, "delete_sample", func(tx domain.Transaction) error {
		return tx.DeleteSample(id)
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "delete_sample", id, dur)
	}
	return res, err
}

func (s *Service) publishEvent(ctx context.Context, eventType string, aggregateID string, payload map[string]any) {
	event := domain.Event{
		EventType:   eventType,
		Source:      "core",
		AggregateID: aggregateID,
		Timestamp:   s.now(),
		Priority:    domain.PriorityNormal,
		Payload:     payload,
	}
	if err := s.pub.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "event_type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	meta := lookupOperationMeta(op)
	if meta.entity == "" {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) recordAuditFailure(ctx context.Context, op string, meta operationMeta, err error, duration time.Duration) {
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		Status:    AuditStatusError,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

func lookupOperationMeta(op string) operationMeta {
	if meta, ok := operationMetadata[op]; ok {
		return meta
	}
	return operationMeta{}
}

var operationMetadata = map[string]operationMeta{
	"create_storage_location":  {entity: domain.EntityStorageLocation, action: domain.ActionCreate},
	"update_storage_location":  {entity: domain.EntityStorageLocation, action: domain.ActionUpdate},
	"delete_storage_location":  {entity: domain.EntityStorageLocation, action: domain.ActionDelete},
	"create_storage_container": {entity: domain.EntityStorageContainer, action: domain.ActionCreate},
	"update_storage_container": {entity: domain.EntityStorageContainer, action: domain.ActionUpdate},
	"delete_storage_container": {entity: domain.EntityStorageContainer, action: domain.ActionDelete},
	"create_sample":            {entity: domain.EntitySample, action: domain.ActionCreate},
	"update_sample":            {entity: domain.EntitySample, action: domain.ActionUpdate},
	"delete_sample":            {entity: domain.EntitySample, action: domain.ActionDelete},
	"assign_sample":            {entity: domain.EntitySamplePosition, action: domain.ActionCreate},
	"move_sample":              {entity: domain.EntitySamplePosition, action: domain.ActionUpdate},
	"retrieve_sample":          {entity: domain.EntitySamplePosition, action: domain.ActionUpdate},
	"validate_sample":          {entity: domain.EntitySample, action: domain.ActionUpdate},
	"discard_sample":           {entity: domain.EntitySample, action: domain.ActionUpdate},
	"dispatch_sequencing":      {entity: domain.EntitySample, action: domain.ActionUpdate},
	"return_sequencing":        {entity: domain.EntitySample, action: domain.ActionUpdate},
	"complete_sequencing":      {entity: domain.EntitySample, action: domain.ActionUpdate},
	"create_sequencing_job":    {entity: domain.EntitySequencingJob, action: domain.ActionCreate},
	"update_job_status":        {entity: domain.EntitySequencingJob, action: domain.ActionUpdate},
	"cancel_sequencing_job":    {entity: domain.EntitySequencingJob, action: domain.ActionDelete},
}

func (s *Service) run(ctx context.Context, op string, fn func(domain.Transaction) error) (domain.Result, time.Duration, error) {
	meta := lookupOperationMeta(op)
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(start)
	success := err == nil

	s.metrics.Observe(ctx, op, success, duration)
	span.End(err)

	if err != nil {
		s.recordAuditFailure(ctx, op, meta, err, duration)
		s.logger.Error("service operation failed", "op", op, "error", err)
		return res, duration, err
	}
	s.logger.Debug("service operation succeeded", "op", op)
	return res, duration, nil
}

type rulesEngineProvider interface {
	RulesEngine() *domain.RulesEngine
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

func extractRulesEngine(store domain.PersistentStore) *domain.RulesEngine {
	if provider, ok := store.(rulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

func selectNowFunc(store domain.PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return func() time.Time { return clock.Now().UTC() }
	}
	return func() time.Time { return time.Now().UTC() }
}
