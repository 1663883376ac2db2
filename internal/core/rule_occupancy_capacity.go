package core

import (
	"context"
	"fmt"

	"limscore/pkg/domain"
)

// NewOccupancyCapacityRule returns the commit-time invariant check backing
// C4: every container's occupied_count must stay within [0, capacity] and a
// position container's capacity is at most one. The allocator (C5) is the
// primary enforcement point, rejecting over-capacity placements synchronously
// with PositionOccupied/CapacityExceeded; this rule is the transaction-wide
// safety net that catches any path that bypasses it.
func NewOccupancyCapacityRule() domain.Rule {
	return occupancyCapacityRule{}
}

type occupancyCapacityRule struct{}

func (occupancyCapacityRule) Name() string { return "occupancy_capacity" }

func (occupancyCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, container := range view.ListStorageContainers() {
		if container.OccupiedCount < 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "occupancy_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("container %s has negative occupied_count %d", container.ID, container.OccupiedCount),
				Entity:   domain.EntityStorageContainer,
				EntityID: container.ID,
			})
			continue
		}
		if container.Capacity > 0 && container.OccupiedCount > container.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "occupancy_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("container %s (%s) over capacity: %d/%d", container.Name, container.ID, container.OccupiedCount, container.Capacity),
				Entity:   domain.EntityStorageContainer,
				EntityID: container.ID,
			})
		}
		if container.ContainerType == domain.ContainerPosition && container.Capacity > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "occupancy_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("position container %s declares capacity %d, must be 0 or 1", container.ID, container.Capacity),
				Entity:   domain.EntityStorageContainer,
				EntityID: container.ID,
			})
		}
	}
	return res, nil
}

// NewContainerHierarchyRule returns the commit-time check backing C3's
// hierarchy invariants: valid parent/child type edges, root containers being
// freezers bound to a location, position containers being leaves, and zone
// agreement between a set parent and a set child.
func NewContainerHierarchyRule() domain.Rule {
	return containerHierarchyRule{}
}

type containerHierarchyRule struct{}

func (containerHierarchyRule) Name() string { return "container_hierarchy" }

var validHierarchyEdges = map[domain.ContainerType]domain.ContainerType{
	domain.ContainerFreezer: domain.ContainerRack,
	domain.ContainerRack:    domain.ContainerBox,
	domain.ContainerBox:     domain.ContainerPosition,
}

func (containerHierarchyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	violate := func(container domain.StorageContainer, message string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "container_hierarchy",
			Severity: domain.SeverityBlock,
			Message:  message,
			Entity:   domain.EntityStorageContainer,
			EntityID: container.ID,
		})
	}

	for _, container := range view.ListStorageContainers() {
		if container.ParentContainerID == nil {
			if container.ContainerType != domain.ContainerFreezer {
				violate(container, fmt.Sprintf("root container %s must be a freezer, got %s", container.ID, container.ContainerType))
			}
			if container.LocationID == nil {
				violate(container, fmt.Sprintf("root container %s requires a location_id", container.ID))
			}
			continue
		}

		parent, ok := view.FindStorageContainer(*container.ParentContainerID)
		if !ok {
			violate(container, fmt.Sprintf("container %s references missing parent %s", container.ID, *container.ParentContainerID))
			continue
		}
		if expected, ok := validHierarchyEdges[parent.ContainerType]; !ok || expected != container.ContainerType {
			violate(container, fmt.Sprintf("invalid hierarchy edge %s -> %s for container %s", parent.ContainerType, container.ContainerType, container.ID))
		}
		if parent.TemperatureZone != "" && container.TemperatureZone != "" && parent.TemperatureZone != container.TemperatureZone {
			violate(container, fmt.Sprintf("container %s zone %s disagrees with parent %s zone %s", container.ID, container.TemperatureZone, parent.ID, parent.TemperatureZone))
		}
	}

	for _, container := range view.ListStorageContainers() {
		if container.ContainerType != domain.ContainerPosition {
			continue
		}
		if len(view.ChildContainers(container.ID)) > 0 {
			violate(container, fmt.Sprintf("position container %s must be a leaf", container.ID))
		}
	}

	return res, nil
}
