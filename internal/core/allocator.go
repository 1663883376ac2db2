package core

import (
	"context"
	"fmt"

	"limscore/pkg/domain"
)

// ContainerNode is a single hop in a container's path from root to leaf,
// returned by ContainerPath.
type ContainerNode struct {
	ID            string
	Name          string
	ContainerType domain.ContainerType
}

// ContainerPath returns the chain of ancestors from the root freezer down to
// and including the named container, in root-to-leaf order. Cost is O(depth).
func (s *Service) ContainerPath(ctx context.Context, containerID string) ([]ContainerNode, error) {
	var path []ContainerNode
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		current, ok := view.FindStorageContainer(containerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
		}
		chain := []domain.StorageContainer{current}
		for current.ParentContainerID != nil {
			parent, ok := view.FindStorageContainer(*current.ParentContainerID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: *current.ParentContainerID}
			}
			chain = append(chain, parent)
			current = parent
		}
		path = make([]ContainerNode, len(chain))
		for i, node := range chain {
			path[len(chain)-1-i] = ContainerNode{ID: node.ID, Name: node.Name, ContainerType: node.ContainerType}
		}
		return nil
	})
	return path, err
}

// ContainerLevel returns the 0-indexed depth of a container; a root freezer is level 0.
func (s *Service) ContainerLevel(ctx context.Context, containerID string) (int, error) {
	path, err := s.ContainerPath(ctx, containerID)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

// Subtree returns every descendant of containerID (not including itself),
// collected breadth-first. Cost is O(size of subtree).
func (s *Service) Subtree(ctx context.Context, containerID string) ([]domain.StorageContainer, error) {
	var result []domain.StorageContainer
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindStorageContainer(containerID); !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
		}
		queue := []string{containerID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, child := range view.ChildContainers(id) {
				result = append(result, child)
				queue = append(queue, child.ID)
			}
		}
		return nil
	})
	return result, err
}

// GridCell reports a single position slot within a box's grid view.
type GridCell struct {
	Row         int
	Col         int
	ContainerID string
	Occupied    bool
	SampleID    string
}

// GridView renders a box container's position children as a 2D occupancy
// grid. Cost is O(positions in the box).
func (s *Service) GridView(ctx context.Context, boxContainerID string) ([][]GridCell, error) {
	var grid [][]GridCell
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		box, ok := view.FindStorageContainer(boxContainerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: boxContainerID}
		}
		if box.ContainerType != domain.ContainerBox {
			return domain.ValidationError{Field: "container_type", Message: fmt.Sprintf("%s is not a box", boxContainerID)}
		}
		rows, cols := 1, 1
		if box.Dimensions != nil {
			rows, cols = box.Dimensions.Rows, box.Dimensions.Cols
		}
		grid = make([][]GridCell, rows)
		for r := range grid {
			grid[r] = make([]GridCell, cols)
			for c := range grid[r] {
				grid[r][c] = GridCell{Row: r, Col: c}
			}
		}
		for _, position := range view.ChildContainers(boxContainerID) {
			if position.GridPosition == nil {
				continue
			}
			r, c := position.GridPosition.Row, position.GridPosition.Col
			if r < 0 || r >= rows || c < 0 || c >= cols {
				continue
			}
			cell := GridCell{Row: r, Col: c, ContainerID: position.ID}
			if occupant, ok := view.FindActivePositionByContainer(position.ID); ok {
				cell.Occupied = true
				cell.SampleID = occupant.SampleID
			}
			grid[r][c] = cell
		}
		return nil
	})
	return grid, err
}

// OccupancyStatus classifies a container's current utilization against the
// configured warning/critical thresholds (C4).
type OccupancyStatus struct {
	ContainerID   string
	OccupiedCount int
	Capacity      int
	Utilization   float64
	Level         string // "ok" | "warning" | "critical"
}

// ClassifyContainer reports occupancy utilization for a single container.
func (s *Service) ClassifyContainer(ctx context.Context, containerID string) (OccupancyStatus, error) {
	var status OccupancyStatus
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		container, ok := view.FindStorageContainer(containerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
		}
		status = s.classify(container)
		return nil
	})
	return status, err
}

func (s *Service) classify(container domain.StorageContainer) OccupancyStatus {
	status := OccupancyStatus{
		ContainerID:   container.ID,
		OccupiedCount: container.OccupiedCount,
		Capacity:      container.Capacity,
		Level:         "ok",
	}
	if container.Capacity <= 0 {
		return status
	}
	status.Utilization = float64(container.OccupiedCount) / float64(container.Capacity)
	switch {
	case status.Utilization >= s.criticalThreshold:
		status.Level = "critical"
	case status.Utilization >= s.warningThreshold:
		status.Level = "warning"
	}
	return status
}

// resolveZone walks up the hierarchy to find the first explicitly-set
// temperature zone, implementing the inherited-zone semantics: a container
// that leaves TemperatureZone unset is understood to carry its nearest
// zoned ancestor's zone.
func resolveZone(view domain.TransactionView, container domain.StorageContainer) domain.TemperatureZone {
	for {
		if container.TemperatureZone != "" {
			return container.TemperatureZone
		}
		if container.ParentContainerID == nil {
			return ""
		}
		parent, ok := view.FindStorageContainer(*container.ParentContainerID)
		if !ok {
			return ""
		}
		container = parent
	}
}

// adjustOccupancy walks from containerID up to the root, applying delta to
// OccupiedCount at every level. This is C4's incremental root-ward
// maintenance: a single placement changes occupied_count at the position,
// its box, its rack, and its freezer simultaneously.
func adjustOccupancy(tx domain.Transaction, containerID string, delta int) error {
	current, ok := tx.FindStorageContainer(containerID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
	}
	for {
		id := current.ID
		_, err := tx.UpdateStorageContainer(id, func(c *domain.StorageContainer) error {
			c.OccupiedCount += delta
			return nil
		})
		if err != nil {
			return err
		}
		if current.ParentContainerID == nil {
			return nil
		}
		parent, ok := tx.FindStorageContainer(*current.ParentContainerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: *current.ParentContainerID}
		}
		current = parent
	}
}

// checkAncestorCapacity walks from containerID's parent up to the root,
// rejecting the placement with CapacityExceededError if any ancestor with a
// configured max_capacity is already at capacity. The immediate container's
// own capacity is checked separately by the caller; this only covers rack,
// box, and freezer ancestors whose occupied_count is maintained root-ward by
// adjustOccupancy.
func checkAncestorCapacity(tx domain.Transaction, containerID string) error {
	container, ok := tx.FindStorageContainer(containerID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
	}
	for container.ParentContainerID != nil {
		parent, ok := tx.FindStorageContainer(*container.ParentContainerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: *container.ParentContainerID}
		}
		if parent.Capacity > 0 && parent.OccupiedCount >= parent.Capacity {
			return domain.CapacityExceededError{ContainerID: parent.ID, Capacity: parent.Capacity, Requested: parent.OccupiedCount + 1}
		}
		container = parent
	}
	return nil
}

// AssignSample implements C5's Assign operation: places a sample into a leaf
// (position) container for the first time. The container must be unoccupied,
// within capacity, and zone-compatible with the sample's requirements (if any).
// A Validated sample moves to InStorage as part of the same transaction.
func (s *Service) AssignSample(ctx context.Context, sampleID, containerID, actor string, special *domain.SpecialRequirements) (domain.SamplePosition, domain.Result, error) {
	var created domain.SamplePosition
	res, dur, err := s.run(ctx, "assign_sample", func(tx domain.Transaction) error {
		sample, ok := tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: sampleID}
		}
		container, ok := tx.FindStorageContainer(containerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: containerID}
		}
		if container.ContainerType != domain.ContainerPosition {
			return domain.ValidationError{Field: "container_id", Message: "samples may only be assigned to position containers"}
		}
		if _, occupied := tx.FindActivePositionByContainer(containerID); occupied {
			return domain.PositionOccupied{ContainerID: containerID}
		}
		if _, hasActive := tx.FindActivePosition(sampleID); hasActive {
			return domain.ConflictError{Entity: domain.EntitySample, ID: sampleID, Message: "sample already has an active position"}
		}
		if container.Capacity > 0 && container.OccupiedCount >= container.Capacity {
			return domain.CapacityExceededError{ContainerID: containerID, Capacity: container.Capacity, Requested: container.OccupiedCount + 1}
		}
		if err := checkAncestorCapacity(tx, containerID); err != nil {
			return err
		}
		if special != nil && special.RequiredZone != "" {
			zone := resolveZone(tx.Snapshot(), container)
			if zone != "" && zone != special.RequiredZone {
				return domain.IncompatibleZoneError{ContainerID: containerID, Required: special.RequiredZone, ContainerZone: zone}
			}
		}

		now := s.now()
		position := domain.SamplePosition{
			SampleID:            sampleID,
			ContainerID:         containerID,
			AssignedAt:          now,
			AssignedBy:          actor,
			SpecialRequirements: special,
			Status:              domain.PositionActive,
			ChainOfCustody: []domain.CustodyEvent{{
				Action:      "assigned",
				Actor:       actor,
				ContainerID: containerID,
				Timestamp:   now,
			}},
		}
		var innerErr error
		created, innerErr = tx.CreateSamplePosition(position)
		if innerErr != nil {
			return innerErr
		}
		if innerErr = adjustOccupancy(tx, containerID, 1); innerErr != nil {
			return innerErr
		}
		if sample.LifecycleState == domain.SampleValidated {
			if _, innerErr = tx.UpdateSample(sampleID, func(sm *domain.Sample) error {
				sm.LifecycleState = domain.SampleInStorage
				return nil
			}); innerErr != nil {
				return innerErr
			}
		}
		_, innerErr = tx.CreateMovementEntry(domain.MovementEntry{
			SampleID:      sampleID,
			Barcode:       sample.Barcode,
			ToContainerID: containerID,
			ToState:       "assigned",
			Actor:         actor,
			Timestamp:     now,
		})
		return innerErr
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "assign_sample", created.ID, dur)
		s.publishEvent(ctx, "sample.placed", created.SampleID, map[string]any{
			"sample_id": created.SampleID, "container_id": created.ContainerID, "actor": actor, "at": created.AssignedAt,
		})
		s.emitCapacityEvents(ctx, containerID)
	}
	return created, res, err
}

// MoveSample implements C5's Move operation: closes the sample's current
// position and opens a new one, appending to both the embedded chain of
// custody and the standalone movement journal.
func (s *Service) MoveSample(ctx context.Context, sampleID, toContainerID, reason, actor string) (domain.SamplePosition, domain.Result, error) {
	var created domain.SamplePosition
	var fromContainerID string
	res, dur, err := s.run(ctx, "move_sample", func(tx domain.Transaction) error {
		sample, ok := tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: sampleID}
		}
		current, hasActive := tx.FindActivePosition(sampleID)
		if !hasActive {
			return domain.ConflictError{Entity: domain.EntitySample, ID: sampleID, Message: "sample has no active position to move"}
		}
		fromContainerID = current.ContainerID

		target, ok := tx.FindStorageContainer(toContainerID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityStorageContainer, ID: toContainerID}
		}
		if target.ContainerType != domain.ContainerPosition {
			return domain.ValidationError{Field: "container_id", Message: "samples may only be moved to position containers"}
		}
		if _, occupied := tx.FindActivePositionByContainer(toContainerID); occupied {
			return domain.PositionOccupied{ContainerID: toContainerID}
		}
		if target.Capacity > 0 && target.OccupiedCount >= target.Capacity {
			return domain.CapacityExceededError{ContainerID: toContainerID, Capacity: target.Capacity, Requested: target.OccupiedCount + 1}
		}
		if err := checkAncestorCapacity(tx, toContainerID); err != nil {
			return err
		}
		if current.SpecialRequirements != nil && current.SpecialRequirements.RequiredZone != "" {
			zone := resolveZone(tx.Snapshot(), target)
			if zone != "" && zone != current.SpecialRequirements.RequiredZone {
				return domain.IncompatibleZoneError{ContainerID: toContainerID, Required: current.SpecialRequirements.RequiredZone, ContainerZone: zone}
			}
		}

		now := s.now()
		_, err := tx.UpdateSamplePosition(current.ID, func(p *domain.SamplePosition) error {
			p.RemovedAt = &now
			p.RemovedBy = actor
			p.Status = domain.PositionRetrieved
			p.ChainOfCustody = append(p.ChainOfCustody, domain.CustodyEvent{
				Action:    "moved",
				Actor:     actor,
				FromID:    fromContainerID,
				ToID:      toContainerID,
				Reason:    reason,
				Timestamp: now,
			})
			return nil
		})
		if err != nil {
			return err
		}
		if err := adjustOccupancy(tx, fromContainerID, -1); err != nil {
			return err
		}

		created, err = tx.CreateSamplePosition(domain.SamplePosition{
			SampleID:            sampleID,
			ContainerID:         toContainerID,
			AssignedAt:          now,
			AssignedBy:          actor,
			SpecialRequirements: current.SpecialRequirements,
			Status:              domain.PositionActive,
			ChainOfCustody: []domain.CustodyEvent{{
				Action:      "moved",
				Actor:       actor,
				ContainerID: toContainerID,
				FromID:      fromContainerID,
				ToID:        toContainerID,
				Reason:      reason,
				Timestamp:   now,
			}},
		})
		if err != nil {
			return err
		}
		if err := adjustOccupancy(tx, toContainerID, 1); err != nil {
			return err
		}
		_, err = tx.CreateMovementEntry(domain.MovementEntry{
			SampleID:        sampleID,
			Barcode:         sample.Barcode,
			FromContainerID: fromContainerID,
			ToContainerID:   toContainerID,
			ToState:         "moved",
			Reason:          reason,
			Actor:           actor,
			Timestamp:       now,
		})
		return err
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "move_sample", created.ID, dur)
		s.publishEvent(ctx, "sample.moved", created.SampleID, map[string]any{
			"sample_id": created.SampleID, "from": fromContainerID, "to": created.ContainerID, "reason": reason, "actor": actor, "at": created.AssignedAt,
		})
		s.emitCapacityEvents(ctx, fromContainerID)
		s.emitCapacityEvents(ctx, created.ContainerID)
	}
	return created, res, err
}

// RetrieveSample implements C5's Retrieve operation: closes the sample's
// current position without opening a new one.
func (s *Service) RetrieveSample(ctx context.Context, sampleID, reason, actor string) (domain.Result, error) {
	var fromContainerID string
	res, dur, err := s.run(ctx, "retrieve_sample", func(tx domain.Transaction) error {
		sample, ok := tx.FindSample(sampleID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: sampleID}
		}
		current, hasActive := tx.FindActivePosition(sampleID)
		if !hasActive {
			return domain.ConflictError{Entity: domain.EntitySample, ID: sampleID, Message: "sample has no active position to retrieve"}
		}
		fromContainerID = current.ContainerID

		now := s.now()
		_, err := tx.UpdateSamplePosition(current.ID, func(p *domain.SamplePosition) error {
			p.RemovedAt = &now
			p.RemovedBy = actor
			p.Status = domain.PositionRetrieved
			p.ChainOfCustody = append(p.ChainOfCustody, domain.CustodyEvent{
				Action:    "retrieved",
				Actor:     actor,
				FromID:    fromContainerID,
				Reason:    reason,
				Timestamp: now,
			})
			return nil
		})
		if err != nil {
			return err
		}
		if err := adjustOccupancy(tx, fromContainerID, -1); err != nil {
			return err
		}
		_, err = tx.CreateMovementEntry(domain.MovementEntry{
			SampleID:        sampleID,
			Barcode:         sample.Barcode,
			FromContainerID: fromContainerID,
			ToState:         "retrieved",
			Reason:          reason,
			Actor:           actor,
			Timestamp:       now,
		})
		return err
	})
	if err == nil {
		s.recordAuditSuccess(ctx, "retrieve_sample", sampleID, dur)
		s.publishEvent(ctx, "sample.retrieved", sampleID, map[string]any{
			"sample_id": sampleID, "from": fromContainerID, "reason": reason, "actor": actor, "at": s.now(),
		})
		s.emitCapacityEvents(ctx, fromContainerID)
	}
	return res, err
}

// emitCapacityEvents publishes capacity.warning / capacity.critical once a
// container crosses the configured thresholds. Best-effort; errors reading
// the container back are swallowed since this runs after commit.
func (s *Service) emitCapacityEvents(ctx context.Context, containerID string) {
	container, ok := s.store.GetStorageContainer(containerID)
	if !ok {
		return
	}
	status := s.classify(container)
	switch status.Level {
	case "critical":
		s.publishEvent(ctx, "capacity.critical", containerID, map[string]any{"container_id": containerID, "utilization": status.Utilization})
	case "warning":
		s.publishEvent(ctx, "capacity.warning", containerID, map[string]any{"container_id": containerID, "utilization": status.Utilization})
	}
}
