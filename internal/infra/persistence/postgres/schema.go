package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"limscore/internal/infra/persistence/memory"
	"limscore/pkg/domain"
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS storage_locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		temperature_zone TEXT NOT NULL,
		max_capacity INTEGER NOT NULL DEFAULT 0,
		coordinates JSONB,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS storage_containers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		container_type TEXT NOT NULL,
		parent_container_id TEXT REFERENCES storage_containers(id),
		location_id TEXT REFERENCES storage_locations(id),
		grid_row INTEGER,
		grid_col INTEGER,
		dim_rows INTEGER,
		dim_cols INTEGER,
		capacity INTEGER NOT NULL DEFAULT 0,
		occupied_count INTEGER NOT NULL DEFAULT 0,
		temperature_zone TEXT,
		barcode TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_storage_containers_parent ON storage_containers(parent_container_id)`,
	`CREATE TABLE IF NOT EXISTS samples (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		barcode TEXT NOT NULL UNIQUE,
		lifecycle_state TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sample_positions (
		id TEXT PRIMARY KEY,
		sample_id TEXT NOT NULL REFERENCES samples(id),
		container_id TEXT NOT NULL REFERENCES storage_containers(id),
		position_identifier TEXT,
		assigned_at TIMESTAMPTZ NOT NULL,
		assigned_by TEXT,
		removed_at TIMESTAMPTZ,
		removed_by TEXT,
		storage_conditions TEXT,
		special_requirements JSONB,
		chain_of_custody JSONB NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_positions_sample ON sample_positions(sample_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_positions_container ON sample_positions(container_id)`,
	`CREATE TABLE IF NOT EXISTS movement_entries (
		id TEXT PRIMARY KEY,
		sample_id TEXT NOT NULL,
		barcode TEXT NOT NULL,
		from_container_id TEXT,
		to_container_id TEXT,
		from_state TEXT,
		to_state TEXT NOT NULL,
		reason TEXT,
		actor TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		notes TEXT,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movement_entries_sample ON movement_entries(sample_id)`,
	`CREATE TABLE IF NOT EXISTS sequencing_jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sample_ids JSONB NOT NULL,
		sample_sheet_path TEXT,
		status TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// containerAncestrySQL walks from a leaf container up to its root freezer.
// Rows come back leaf-first; Store.ContainerAncestry reverses them.
const containerAncestrySQL = `
WITH RECURSIVE ancestry AS (
	SELECT id, name, container_type, parent_container_id, location_id, capacity,
	       occupied_count, temperature_zone, barcode, status, created_at, updated_at, 0 AS depth
	FROM storage_containers WHERE id = $1
	UNION ALL
	SELECT c.id, c.name, c.container_type, c.parent_container_id, c.location_id, c.capacity,
	       c.occupied_count, c.temperature_zone, c.barcode, c.status, c.created_at, c.updated_at, a.depth + 1
	FROM storage_containers c
	JOIN ancestry a ON c.id = a.parent_container_id
)
SELECT id, name, container_type, parent_container_id, location_id, capacity,
       occupied_count, temperature_zone, barcode, status, created_at, updated_at, depth
FROM ancestry ORDER BY depth ASC`

func applyDDL(ctx context.Context, db execQuerier) error {
	for _, stmt := range ddlStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func insertLocations(ctx context.Context, exec execQuerier, locations map[string]domain.StorageLocation) error {
	for _, id := range sortedKeys(locations) {
		l := locations[id]
		coords, err := marshalOptional(l.Coordinates)
		if err != nil {
			return fmt.Errorf("marshal location %s coordinates: %w", id, err)
		}
		meta, err := marshalOptional(l.Metadata)
		if err != nil {
			return fmt.Errorf("marshal location %s metadata: %w", id, err)
		}
		if _, err := exec.ExecContext(ctx, `INSERT INTO storage_locations
			(id, name, description, temperature_zone, max_capacity, coordinates, metadata, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
				temperature_zone=EXCLUDED.temperature_zone, max_capacity=EXCLUDED.max_capacity,
				coordinates=EXCLUDED.coordinates, metadata=EXCLUDED.metadata, updated_at=EXCLUDED.updated_at`,
			l.ID, l.Name, l.Description, string(l.TemperatureZone), l.MaxCapacity, coords, meta, l.CreatedAt, l.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert location %s: %w", id, err)
		}
	}
	return nil
}

func insertContainer(ctx context.Context, exec execQuerier, c domain.StorageContainer) error {
	var gridRow, gridCol, dimRows, dimCols sql.NullInt64
	if c.GridPosition != nil {
		gridRow = sql.NullInt64{Int64: int64(c.GridPosition.Row), Valid: true}
		gridCol = sql.NullInt64{Int64: int64(c.GridPosition.Col), Valid: true}
	}
	if c.Dimensions != nil {
		dimRows = sql.NullInt64{Int64: int64(c.Dimensions.Rows), Valid: true}
		dimCols = sql.NullInt64{Int64: int64(c.Dimensions.Cols), Valid: true}
	}
	if _, err := exec.ExecContext(ctx, `INSERT INTO storage_containers
		(id, name, container_type, parent_container_id, location_id, grid_row, grid_col, dim_rows, dim_cols,
		 capacity, occupied_count, temperature_zone, barcode, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, container_type=EXCLUDED.container_type,
			parent_container_id=EXCLUDED.parent_container_id, location_id=EXCLUDED.location_id,
			grid_row=EXCLUDED.grid_row, grid_col=EXCLUDED.grid_col, dim_rows=EXCLUDED.dim_rows,
			dim_cols=EXCLUDED.dim_cols, capacity=EXCLUDED.capacity, occupied_count=EXCLUDED.occupied_count,
			temperature_zone=EXCLUDED.temperature_zone, barcode=EXCLUDED.barcode, status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at`,
		c.ID, c.Name, string(c.ContainerType), c.ParentContainerID, c.LocationID, gridRow, gridCol, dimRows, dimCols,
		c.Capacity, c.OccupiedCount, string(c.TemperatureZone), c.Barcode, string(c.Status), c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert container %s: %w", c.ID, err)
	}
	return nil
}

func insertSamples(ctx context.Context, exec execQuerier, samples map[string]domain.Sample) error {
	for _, id := range sortedKeys(samples) {
		s := samples[id]
		meta, err := marshalOptional(s.Metadata)
		if err != nil {
			return fmt.Errorf("marshal sample %s metadata: %w", id, err)
		}
		if _, err := exec.ExecContext(ctx, `INSERT INTO samples
			(id, name, barcode, lifecycle_state, metadata, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, barcode=EXCLUDED.barcode,
				lifecycle_state=EXCLUDED.lifecycle_state, metadata=EXCLUDED.metadata, updated_at=EXCLUDED.updated_at`,
			s.ID, s.Name, s.Barcode, string(s.LifecycleState), meta, s.CreatedAt, s.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert sample %s: %w", id, err)
		}
	}
	return nil
}

func insertPositions(ctx context.Context, exec execQuerier, positions map[string]domain.SamplePosition) error {
	for _, id := range sortedKeys(positions) {
		p := positions[id]
		special, err := marshalOptional(p.SpecialRequirements)
		if err != nil {
			return fmt.Errorf("marshal position %s special_requirements: %w", id, err)
		}
		custody, err := json.Marshal(p.ChainOfCustody)
		if err != nil {
			return fmt.Errorf("marshal position %s chain_of_custody: %w", id, err)
		}
		if _, err := exec.ExecContext(ctx, `INSERT INTO sample_positions
			(id, sample_id, container_id, position_identifier, assigned_at, assigned_by, removed_at, removed_by,
			 storage_conditions, special_requirements, chain_of_custody, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO UPDATE SET removed_at=EXCLUDED.removed_at, removed_by=EXCLUDED.removed_by,
				storage_conditions=EXCLUDED.storage_conditions, special_requirements=EXCLUDED.special_requirements,
				chain_of_custody=EXCLUDED.chain_of_custody, status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
			p.ID, p.SampleID, p.ContainerID, p.PositionIdentifier, p.AssignedAt, p.AssignedBy, p.RemovedAt, p.RemovedBy,
			p.StorageConditions, special, custody, string(p.Status), p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert position %s: %w", id, err)
		}
	}
	return nil
}

func insertMovements(ctx context.Context, exec execQuerier, movements map[string]domain.MovementEntry) error {
	for _, id := range sortedKeys(movements) {
		m := movements[id]
		if _, err := exec.ExecContext(ctx, `INSERT INTO movement_entries
			(id, sample_id, barcode, from_container_id, to_container_id, from_state, to_state, reason, actor,
			 timestamp, notes, published, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO UPDATE SET published=EXCLUDED.published, updated_at=EXCLUDED.updated_at`,
			m.ID, m.SampleID, m.Barcode, m.FromContainerID, m.ToContainerID, m.FromState, m.ToState, m.Reason, m.Actor,
			m.Timestamp, m.Notes, m.Published, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert movement entry %s: %w", id, err)
		}
	}
	return nil
}

func insertJobs(ctx context.Context, exec execQuerier, jobs map[string]domain.SequencingJob) error {
	for _, id := range sortedKeys(jobs) {
		j := jobs[id]
		sampleIDs, err := json.Marshal(j.SampleIDs)
		if err != nil {
			return fmt.Errorf("marshal job %s sample_ids: %w", id, err)
		}
		meta, err := marshalOptional(j.Metadata)
		if err != nil {
			return fmt.Errorf("marshal job %s metadata: %w", id, err)
		}
		if _, err := exec.ExecContext(ctx, `INSERT INTO sequencing_jobs
			(id, name, sample_ids, sample_sheet_path, status, metadata, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, sample_ids=EXCLUDED.sample_ids,
				sample_sheet_path=EXCLUDED.sample_sheet_path, status=EXCLUDED.status, metadata=EXCLUDED.metadata,
				updated_at=EXCLUDED.updated_at`,
			j.ID, j.Name, sampleIDs, j.SampleSheetPath, string(j.Status), meta, j.CreatedAt, j.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert job %s: %w", id, err)
		}
	}
	return nil
}

func loadNormalizedSnapshot(ctx context.Context, db execQuerier) (memory.Snapshot, error) {
	locations, err := loadLocations(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	containers, err := loadContainers(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	samples, err := loadSamples(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	positions, err := loadPositions(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	movements, err := loadMovements(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	jobs, err := loadJobs(ctx, db)
	if err != nil {
		return memory.Snapshot{}, err
	}
	return memory.Snapshot{
		Locations:  locations,
		Containers: containers,
		Samples:    samples,
		Positions:  positions,
		Movements:  movements,
		Jobs:       jobs,
	}, nil
}

func loadLocations(ctx context.Context, db execQuerier) (map[string]domain.StorageLocation, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, description, temperature_zone, max_capacity, coordinates, metadata, created_at, updated_at FROM storage_locations`)
	if err != nil {
		return nil, fmt.Errorf("select storage_locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.StorageLocation)
	for rows.Next() {
		var (
			id, name, zone        string
			description           sql.NullString
			maxCapacity           int
			coordsRaw, metaRaw    []byte
			createdAt, updatedAt  time.Time
		)
		if err := rows.Scan(&id, &name, &description, &zone, &maxCapacity, &coordsRaw, &metaRaw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan storage_locations: %w", err)
		}
		var coords *domain.Coordinates
		if len(coordsRaw) > 0 {
			coords = &domain.Coordinates{}
			if err := json.Unmarshal(coordsRaw, coords); err != nil {
				return nil, fmt.Errorf("decode location %s coordinates: %w", id, err)
			}
		}
		meta, err := decodeAnyMap(metaRaw)
		if err != nil {
			return nil, fmt.Errorf("decode location %s metadata: %w", id, err)
		}
		out[id] = domain.StorageLocation{
			Base:            domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			Name:            name,
			Description:     description.String,
			TemperatureZone: domain.TemperatureZone(zone),
			MaxCapacity:     maxCapacity,
			Coordinates:     coords,
			Metadata:        meta,
		}
	}
	return out, rows.Err()
}

func loadContainers(ctx context.Context, db execQuerier) (map[string]domain.StorageContainer, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, container_type, parent_container_id, location_id, grid_row,
		grid_col, dim_rows, dim_cols, capacity, occupied_count, temperature_zone, barcode, status, created_at, updated_at FROM storage_containers`)
	if err != nil {
		return nil, fmt.Errorf("select storage_containers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.StorageContainer)
	for rows.Next() {
		var (
			id, name, ctype, status         string
			parentID, locationID            sql.NullString
			gridRow, gridCol, dimRows, dimCols sql.NullInt64
			capacity, occupied              int
			zone, barcode                   sql.NullString
			createdAt, updatedAt            time.Time
		)
		if err := rows.Scan(&id, &name, &ctype, &parentID, &locationID, &gridRow, &gridCol, &dimRows, &dimCols,
			&capacity, &occupied, &zone, &barcode, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan storage_containers: %w", err)
		}
		var grid *domain.GridPosition
		if gridRow.Valid && gridCol.Valid {
			grid = &domain.GridPosition{Row: int(gridRow.Int64), Col: int(gridCol.Int64)}
		}
		var dims *domain.Dimensions
		if dimRows.Valid && dimCols.Valid {
			dims = &domain.Dimensions{Rows: int(dimRows.Int64), Cols: int(dimCols.Int64)}
		}
		out[id] = domain.StorageContainer{
			Base:              domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			Name:              name,
			ContainerType:     domain.ContainerType(ctype),
			ParentContainerID: nullableString(parentID),
			LocationID:        nullableString(locationID),
			GridPosition:      grid,
			Dimensions:        dims,
			Capacity:          capacity,
			OccupiedCount:     occupied,
			TemperatureZone:   domain.TemperatureZone(zone.String),
			Barcode:           barcode.String,
			Status:            domain.ContainerStatus(status),
		}
	}
	return out, rows.Err()
}

func loadSamples(ctx context.Context, db execQuerier) (map[string]domain.Sample, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, barcode, lifecycle_state, metadata, created_at, updated_at FROM samples`)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.Sample)
	for rows.Next() {
		var (
			id, name, barcode, state string
			metaRaw                  []byte
			createdAt, updatedAt     time.Time
		)
		if err := rows.Scan(&id, &name, &barcode, &state, &metaRaw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan samples: %w", err)
		}
		meta, err := decodeAnyMap(metaRaw)
		if err != nil {
			return nil, fmt.Errorf("decode sample %s metadata: %w", id, err)
		}
		out[id] = domain.Sample{
			Base:           domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			Name:           name,
			Barcode:        barcode,
			LifecycleState: domain.SampleLifecycleState(state),
			Metadata:       meta,
		}
	}
	return out, rows.Err()
}

func loadPositions(ctx context.Context, db execQuerier) (map[string]domain.SamplePosition, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, sample_id, container_id, position_identifier, assigned_at, assigned_by,
		removed_at, removed_by, storage_conditions, special_requirements, chain_of_custody, status, created_at, updated_at FROM sample_positions`)
	if err != nil {
		return nil, fmt.Errorf("select sample_positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.SamplePosition)
	for rows.Next() {
		var (
			id, sampleID, containerID, status string
			positionIdentifier, assignedBy    sql.NullString
			removedBy, storageConditions      sql.NullString
			assignedAt                        time.Time
			removedAt                         sql.NullTime
			specialRaw, custodyRaw            []byte
			createdAt, updatedAt              time.Time
		)
		if err := rows.Scan(&id, &sampleID, &containerID, &positionIdentifier, &assignedAt, &assignedBy,
			&removedAt, &removedBy, &storageConditions, &specialRaw, &custodyRaw, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan sample_positions: %w", err)
		}
		var special *domain.SpecialRequirements
		if len(specialRaw) > 0 {
			special = &domain.SpecialRequirements{}
			if err := json.Unmarshal(specialRaw, special); err != nil {
				return nil, fmt.Errorf("decode position %s special_requirements: %w", id, err)
			}
		}
		var custody []domain.CustodyEvent
		if len(custodyRaw) > 0 {
			if err := json.Unmarshal(custodyRaw, &custody); err != nil {
				return nil, fmt.Errorf("decode position %s chain_of_custody: %w", id, err)
			}
		}
		var removedAtPtr *time.Time
		if removedAt.Valid {
			removedAtPtr = &removedAt.Time
		}
		out[id] = domain.SamplePosition{
			Base:                domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			SampleID:            sampleID,
			ContainerID:         containerID,
			PositionIdentifier:  positionIdentifier.String,
			AssignedAt:          assignedAt,
			AssignedBy:          assignedBy.String,
			RemovedAt:           removedAtPtr,
			RemovedBy:           removedBy.String,
			StorageConditions:   storageConditions.String,
			SpecialRequirements: special,
			ChainOfCustody:      custody,
			Status:              domain.PositionStatus(status),
		}
	}
	return out, rows.Err()
}

func loadMovements(ctx context.Context, db execQuerier) (map[string]domain.MovementEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, sample_id, barcode, from_container_id, to_container_id, from_state,
		to_state, reason, actor, timestamp, notes, published, created_at, updated_at FROM movement_entries`)
	if err != nil {
		return nil, fmt.Errorf("select movement_entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.MovementEntry)
	for rows.Next() {
		var (
			id, sampleID, barcode, toState string
			fromContainerID, toContainerID sql.NullString
			fromState, reason, actor, notes sql.NullString
			timestamp, createdAt, updatedAt time.Time
			published                       bool
		)
		if err := rows.Scan(&id, &sampleID, &barcode, &fromContainerID, &toContainerID, &fromState, &toState,
			&reason, &actor, &timestamp, &notes, &published, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan movement_entries: %w", err)
		}
		out[id] = domain.MovementEntry{
			Base:            domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			SampleID:        sampleID,
			Barcode:         barcode,
			FromContainerID: fromContainerID.String,
			ToContainerID:   toContainerID.String,
			FromState:       fromState.String,
			ToState:         toState,
			Reason:          reason.String,
			Actor:           actor.String,
			Timestamp:       timestamp,
			Notes:           notes.String,
			Published:       published,
		}
	}
	return out, rows.Err()
}

func loadJobs(ctx context.Context, db execQuerier) (map[string]domain.SequencingJob, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, sample_ids, sample_sheet_path, status, metadata, created_at, updated_at FROM sequencing_jobs`)
	if err != nil {
		return nil, fmt.Errorf("select sequencing_jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.SequencingJob)
	for rows.Next() {
		var (
			id, name, status      string
			sheetPath             sql.NullString
			sampleIDsRaw, metaRaw []byte
			createdAt, updatedAt  time.Time
		)
		if err := rows.Scan(&id, &name, &sampleIDsRaw, &sheetPath, &status, &metaRaw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan sequencing_jobs: %w", err)
		}
		var sampleIDs []string
		if len(sampleIDsRaw) > 0 {
			if err := json.Unmarshal(sampleIDsRaw, &sampleIDs); err != nil {
				return nil, fmt.Errorf("decode job %s sample_ids: %w", id, err)
			}
		}
		meta, err := decodeAnyMap(metaRaw)
		if err != nil {
			return nil, fmt.Errorf("decode job %s metadata: %w", id, err)
		}
		out[id] = domain.SequencingJob{
			Base:            domain.Base{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
			Name:            name,
			SampleIDs:       sampleIDs,
			SampleSheetPath: sheetPath.String,
			Status:          domain.JobStatus(status),
			Metadata:        meta,
		}
	}
	return out, rows.Err()
}

func decodeAnyMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
