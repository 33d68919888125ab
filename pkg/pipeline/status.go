package pipeline

import "hotelplan/pkg/domain"

// Event is a pipeline outcome that moves a project's status.
type Event string

const (
	EventDesignChanged  Event = "design_changed"
	EventRecalculated   Event = "recalculated"
	EventCostCalculated Event = "cost_calculated"
)

// NextStatus is the status transition table.
//
//	design changed   -> needs_recalc from any state
//	recalculated     -> costs_ready, whether or not errors were found
//	cost calculated  -> compliant without errors, needs_recalc with errors
//
// Unknown events leave the status unchanged.
func NextStatus(current domain.ProjectStatus, event Event, hasErrors bool) domain.ProjectStatus {
	switch event {
	case EventDesignChanged:
		return domain.StatusNeedsRecalc
	case EventRecalculated:
		return domain.StatusCostsReady
	case EventCostCalculated:
		if hasErrors {
			return domain.StatusNeedsRecalc
		}
		return domain.StatusCompliant
	default:
		return current
	}
}
