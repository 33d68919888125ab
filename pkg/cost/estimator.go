// Package cost turns a room count, brand tier and regional multiplier into a
// per-key construction cost range.
package cost

import "strings"

// Brand tiers understood by the estimator. Anything else is priced as standard.
const (
	TierStandard = "standard"
	TierUpscale  = "upscale"
	TierLuxury   = "luxury"
)

const (
	DefaultBrandTier          = TierStandard
	DefaultRegionalMultiplier = 1.0

	lowFactor  = 0.9
	highFactor = 1.15
)

var baseCostPerKey = map[string]float64{
	TierStandard: 125000,
	TierUpscale:  165000,
	TierLuxury:   220000,
}

// Estimate is the output of one cost calculation. Per-key figures are not rounded.
type Estimate struct {
	BrandTier          string
	RegionalMultiplier float64
	TotalRooms         int
	LowPerKey          float64
	MidPerKey          float64
	HighPerKey         float64
}

// TotalLow and friends scale the per-key range by the room count.
func (e Estimate) TotalLow() float64  { return e.LowPerKey * float64(e.TotalRooms) }
func (e Estimate) TotalMid() float64  { return e.MidPerKey * float64(e.TotalRooms) }
func (e Estimate) TotalHigh() float64 { return e.HighPerKey * float64(e.TotalRooms) }

// BaseCostPerKey returns the table value for tier, falling back to standard.
func BaseCostPerKey(tier string) float64 {
	if base, ok := baseCostPerKey[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return base
	}
	return baseCostPerKey[TierStandard]
}

// Calculate prices totalRooms keys. Inputs are not validated: a zero room count
// still yields per-key figures and a zero or negative multiplier is applied as given.
func Calculate(totalRooms int, brandTier string, regionalMultiplier float64) Estimate {
	low, mid, high := perKeyRange(BaseCostPerKey(brandTier), regionalMultiplier)
	return Estimate{
		BrandTier:          brandTier,
		RegionalMultiplier: regionalMultiplier,
		TotalRooms:         totalRooms,
		LowPerKey:          low,
		MidPerKey:          mid,
		HighPerKey:         high,
	}
}

func perKeyRange(base, multiplier float64) (low, mid, high float64) {
	mid = base * multiplier
	return mid * lowFactor, mid, mid * highFactor
}
