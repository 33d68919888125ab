package design

import (
	"math"

	"hotelplan/pkg/compliance"
	"hotelplan/pkg/cost"
)

// PublicAreaCostPerSqft prices public space in the headline estimate.
const PublicAreaCostPerSqft = 200

// KPIs are the headline numbers shown above the design editor.
type KPIs struct {
	TotalRooms           int     `json:"totalRooms"`
	TotalFloors          int     `json:"totalFloors"`
	AverageRoomsPerFloor int     `json:"averageRoomsPerFloor"`
	AccessibleRooms      int     `json:"accessibleRooms"`
	PublicAreaSqft       int     `json:"publicAreaSqft"`
	EstimatedCost        float64 `json:"estimatedCost"`
}

// KPIs summarises the design. The cost per key comes from the standard tier
// of the cost table so the headline figure agrees with the cost stage.
func (d Design) KPIs() KPIs {
	k := KPIs{
		TotalRooms:      compliance.TotalRooms(d.Floors),
		TotalFloors:     len(d.Floors),
		AccessibleRooms: compliance.AccessibleRooms(d.Floors),
	}
	for _, a := range d.PublicAreas {
		k.PublicAreaSqft += a.SizeSqft
	}
	if k.TotalFloors > 0 {
		k.AverageRoomsPerFloor = int(math.Round(float64(k.TotalRooms) / float64(k.TotalFloors)))
	}
	k.EstimatedCost = float64(k.TotalRooms)*cost.BaseCostPerKey(cost.TierStandard) +
		float64(k.PublicAreaSqft)*PublicAreaCostPerSqft
	return k
}
