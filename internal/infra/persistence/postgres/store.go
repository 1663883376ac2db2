// Package postgres provides a Postgres-backed persistent store that applies
// normalized DDL on startup and issues CRUD statements directly against it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"limscore/internal/infra/persistence/memory"
	"limscore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/limscore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while using the in-memory transaction
// engine for rule evaluation, then commits the resulting delta to the
// normalized tables instead of snapshot mirroring.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
	mu     sync.Mutex
	cache  memory.Snapshot
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), applies the normalized DDL, and hydrates an in-memory
// snapshot cache from the database.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDL(ctx, db); err != nil {
		return nil, err
	}
	cache, err := loadNormalizedSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, engine: engine, cache: cache}, nil
}

// RunInTransaction evaluates fn against an in-memory transaction seeded from
// the current database state and persists the resulting delta to the
// normalized schema inside a single database transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	before, err := loadNormalizedSnapshot(ctx, tx)
	if err != nil {
		return domain.Result{}, err
	}

	mem := memory.NewStore(s.engine)
	mem.ImportState(before)

	res, err := mem.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	after := mem.ExportState()

	if err := applySnapshotDelta(ctx, tx, before, after); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.cache = after
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the package-level sql.Open used by NewStore, for
// tests that register a stub driver. It returns a function that restores
// the previous implementation.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

func (s *Store) snapshotOrCache(ctx context.Context) memory.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := loadNormalizedSnapshot(ctx, s.db)
	if err == nil {
		s.cache = snap
		return snap
	}
	return cloneSnapshot(s.cache)
}

// View executes fn against a read-only snapshot of the Postgres-backed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	snapshot := s.snapshotOrCache(ctx)
	mem := memory.NewStore(s.engine)
	mem.ImportState(snapshot)
	return mem.View(ctx, fn)
}

func (s *Store) GetStorageLocation(id string) (domain.StorageLocation, bool) {
	snap := s.snapshotOrCache(context.Background())
	l, ok := snap.Locations[id]
	return l, ok
}

func (s *Store) ListStorageLocations() []domain.StorageLocation {
	return mapValues(s.snapshotOrCache(context.Background()).Locations)
}

func (s *Store) GetStorageContainer(id string) (domain.StorageContainer, bool) {
	snap := s.snapshotOrCache(context.Background())
	c, ok := snap.Containers[id]
	return c, ok
}

func (s *Store) ListStorageContainers() []domain.StorageContainer {
	return mapValues(s.snapshotOrCache(context.Background()).Containers)
}

func (s *Store) ChildContainers(parentID string) []domain.StorageContainer {
	var out []domain.StorageContainer
	for _, c := range s.snapshotOrCache(context.Background()).Containers {
		if c.ParentContainerID != nil && *c.ParentContainerID == parentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetSample(id string) (domain.Sample, bool) {
	snap := s.snapshotOrCache(context.Background())
	sm, ok := snap.Samples[id]
	return sm, ok
}

func (s *Store) GetSampleByBarcode(barcode string) (domain.Sample, bool) {
	for _, sm := range s.snapshotOrCache(context.Background()).Samples {
		if sm.Barcode == barcode {
			return sm, true
		}
	}
	return domain.Sample{}, false
}

func (s *Store) ListSamples() []domain.Sample {
	return mapValues(s.snapshotOrCache(context.Background()).Samples)
}

func (s *Store) ActivePosition(sampleID string) (domain.SamplePosition, bool) {
	for _, p := range s.snapshotOrCache(context.Background()).Positions {
		if p.SampleID == sampleID && p.Active() {
			return p, true
		}
	}
	return domain.SamplePosition{}, false
}

func (s *Store) ActivePositionByContainer(containerID string) (domain.SamplePosition, bool) {
	for _, p := range s.snapshotOrCache(context.Background()).Positions {
		if p.ContainerID == containerID && p.Active() {
			return p, true
		}
	}
	return domain.SamplePosition{}, false
}

func (s *Store) ListMovementEntries() []domain.MovementEntry {
	return mapValues(s.snapshotOrCache(context.Background()).Movements)
}

func (s *Store) GetSequencingJob(id string) (domain.SequencingJob, bool) {
	snap := s.snapshotOrCache(context.Background())
	j, ok := snap.Jobs[id]
	return j, ok
}

func (s *Store) ListSequencingJobs() []domain.SequencingJob {
	return mapValues(s.snapshotOrCache(context.Background()).Jobs)
}

// ContainerAncestry walks from id up to its root freezer using the recursive
// common-table expression the relational backend was chosen to support;
// path[0] is the root, path[len-1] is id itself. Level is len(path)-1.
func (s *Store) ContainerAncestry(ctx context.Context, id string) ([]domain.StorageContainer, error) {
	rows, err := s.db.QueryContext(ctx, containerAncestrySQL, id)
	if err != nil {
		return nil, fmt.Errorf("query container ancestry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.StorageContainer
	for rows.Next() {
		var (
			cid, name, ctype, status       string
			parentID, locID, zone, barcode sql.NullString
			capacity, occupied             int
			depth                          int
			createdAt, updatedAt           time.Time
		)
		if err := rows.Scan(&cid, &name, &ctype, &parentID, &locID, &capacity, &occupied, &zone, &barcode, &status, &createdAt, &updatedAt, &depth); err != nil {
			return nil, fmt.Errorf("scan container ancestry: %w", err)
		}
		out = append(out, domain.StorageContainer{
			Base:              domain.Base{ID: cid, CreatedAt: createdAt, UpdatedAt: updatedAt},
			Name:              name,
			ContainerType:     domain.ContainerType(ctype),
			ParentContainerID: nullableString(parentID),
			LocationID:        nullableString(locID),
			Capacity:          capacity,
			OccupiedCount:     occupied,
			TemperatureZone:   domain.TemperatureZone(zone.String),
			Barcode:           barcode.String,
			Status:            domain.ContainerStatus(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate container ancestry: %w", err)
	}
	// The query returns leaf-to-root order; reverse it to root-to-leaf.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func mapValues[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(any(out[i])) < fmt.Sprint(any(out[j]))
	})
	return out
}

func cloneSnapshot(s memory.Snapshot) memory.Snapshot {
	return memory.Snapshot{
		Locations:  mergeMaps(s.Locations, nil),
		Containers: mergeMaps(s.Containers, nil),
		Samples:    mergeMaps(s.Samples, nil),
		Positions:  mergeMaps(s.Positions, nil),
		Movements:  mergeMaps(s.Movements, nil),
		Jobs:       mergeMaps(s.Jobs, nil),
	}
}

type delta[T any] struct {
	created map[string]T
	updated map[string]T
	deleted []string
}

func diffMaps[T any](before, after map[string]T) delta[T] {
	d := delta[T]{created: make(map[string]T), updated: make(map[string]T)}
	for id, afterVal := range after {
		if prev, ok := before[id]; !ok {
			d.created[id] = afterVal
		} else if !reflect.DeepEqual(prev, afterVal) {
			d.updated[id] = afterVal
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			d.deleted = append(d.deleted, id)
		}
	}
	return d
}

func mergeMaps[T any](first, second map[string]T) map[string]T {
	if len(first) == 0 && len(second) == 0 {
		return nil
	}
	out := make(map[string]T, len(first)+len(second))
	for k, v := range first {
		out[k] = v
	}
	for k, v := range second {
		out[k] = v
	}
	return out
}

// applySnapshotDelta persists the difference between two snapshots inside an
// active SQL transaction. Deletes run leaf-to-root and upserts root-to-leaf
// to respect the storage_containers self-referencing foreign key and the
// samples -> sample_positions/sequencing_jobs foreign keys.
func applySnapshotDelta(ctx context.Context, exec execQuerier, before, after memory.Snapshot) error {
	locations := diffMaps(before.Locations, after.Locations)
	containers := diffMaps(before.Containers, after.Containers)
	samples := diffMaps(before.Samples, after.Samples)
	positions := diffMaps(before.Positions, after.Positions)
	movements := diffMaps(before.Movements, after.Movements)
	jobs := diffMaps(before.Jobs, after.Jobs)

	if err := deleteRows(ctx, exec, "sequencing_jobs", jobs.deleted); err != nil {
		return err
	}
	if err := deleteRows(ctx, exec, "movement_entries", movements.deleted); err != nil {
		return err
	}
	if err := deleteRows(ctx, exec, "sample_positions", positions.deleted); err != nil {
		return err
	}
	if err := deleteRows(ctx, exec, "samples", samples.deleted); err != nil {
		return err
	}
	if err := deleteContainersDeepestFirst(ctx, exec, before.Containers, containers.deleted); err != nil {
		return err
	}
	if err := deleteRows(ctx, exec, "storage_locations", locations.deleted); err != nil {
		return err
	}

	if err := insertLocations(ctx, exec, mergeMaps(locations.created, locations.updated)); err != nil {
		return err
	}
	if err := insertContainersShallowestFirst(ctx, exec, after.Containers, mergeMaps(containers.created, containers.updated)); err != nil {
		return err
	}
	if err := insertSamples(ctx, exec, mergeMaps(samples.created, samples.updated)); err != nil {
		return err
	}
	if err := insertPositions(ctx, exec, mergeMaps(positions.created, positions.updated)); err != nil {
		return err
	}
	if err := insertMovements(ctx, exec, mergeMaps(movements.created, movements.updated)); err != nil {
		return err
	}
	if err := insertJobs(ctx, exec, mergeMaps(jobs.created, jobs.updated)); err != nil {
		return err
	}
	return nil
}

// deleteContainersDeepestFirst orders deletions by descending depth so a
// parent is never removed before its children.
func deleteContainersDeepestFirst(ctx context.Context, exec execQuerier, known map[string]domain.StorageContainer, ids []string) error {
	depth := func(id string) int {
		d := 0
		for {
			c, ok := known[id]
			if !ok || c.ParentContainerID == nil {
				return d
			}
			id = *c.ParentContainerID
			d++
		}
	}
	sort.Slice(ids, func(i, j int) bool { return depth(ids[i]) > depth(ids[j]) })
	return deleteRows(ctx, exec, "storage_containers", ids)
}

// insertContainersShallowestFirst orders upserts by ascending depth so a
// child's parent_container_id foreign key is always already present.
func insertContainersShallowestFirst(ctx context.Context, exec execQuerier, known map[string]domain.StorageContainer, containers map[string]domain.StorageContainer) error {
	depth := func(id string) int {
		d := 0
		for {
			c, ok := known[id]
			if !ok || c.ParentContainerID == nil {
				return d
			}
			id = *c.ParentContainerID
			d++
		}
	}
	keys := sortedKeys(containers)
	sort.Slice(keys, func(i, j int) bool { return depth(keys[i]) < depth(keys[j]) })
	for _, id := range keys {
		if err := insertContainer(ctx, exec, containers[id]); err != nil {
			return err
		}
	}
	return nil
}

func deleteRows(ctx context.Context, exec execQuerier, table string, ids []string) error {
	for _, id := range ids {
		if _, err := exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id); err != nil {
			return fmt.Errorf("delete %s %s: %w", table, id, err)
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nullableString(val sql.NullString) *string {
	if val.Valid {
		return &val.String
	}
	return nil
}

func marshalOptional(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	if reflect.ValueOf(value).Kind() == reflect.Ptr && reflect.ValueOf(value).IsNil() {
		return nil, nil
	}
	return json.Marshal(value)
}
