package strategy

import (
	"math"

	"github.com/tifye/pitwall/race"
)

// CompoundParams describe a tyre's degradation curve. Below Cliff the
// loss grows linearly with age; past it a quadratic term takes over.
type CompoundParams struct {
	Offset    float64
	Slope     float64
	Cliff     int
	CliffRate float64
	// PitLimit is the tyre age at which opponents come in.
	PitLimit int
}

var compounds = map[race.Compound]CompoundParams{
	race.Soft:         {Offset: 0.0, Slope: 0.10, Cliff: 16, CliffRate: 0.08, PitLimit: 18},
	race.Medium:       {Offset: 0.6, Slope: 0.06, Cliff: 26, CliffRate: 0.06, PitLimit: 28},
	race.Hard:         {Offset: 1.1, Slope: 0.035, Cliff: 38, CliffRate: 0.05, PitLimit: 38},
	race.Intermediate: {Offset: 3.5, Slope: 0.05, Cliff: 30, CliffRate: 0.05, PitLimit: 30},
	race.Wet:          {Offset: 6.0, Slope: 0.04, Cliff: 35, CliffRate: 0.05, PitLimit: 35},
}

func Params(c race.Compound) CompoundParams {
	if p, ok := compounds[c]; ok {
		return p
	}
	return compounds[race.Medium]
}

// Degradation is the time lost to tyre state on a lap driven at the
// given age. mult scales the linear wear, e.g. under a heatwave.
func Degradation(c race.Compound, age int, mult float64) float64 {
	p := Params(c)
	d := p.Offset + p.Slope*float64(age)*mult
	if over := age - p.Cliff; over > 0 {
		d += p.CliffRate * float64(over*over) * mult
	}
	return d
}

const (
	// TyreCliffPercent is where the timing screen flags the tyre red.
	TyreCliffPercent = 30
	// TyreWarnPercent is where the timing screen flags the tyre amber.
	TyreWarnPercent = 50
)

// TyreLife estimates the remaining useful life in percent, reaching zero
// at the cliff.
func TyreLife(c race.Compound, age int) int {
	p := Params(c)
	life := 100 * (1 - float64(age)/float64(p.Cliff))
	return int(math.Round(math.Max(0, math.Min(100, life))))
}

// Caution pit loss factors. Cars in the pit lane lose less relative to
// a field running slowly behind the safety car.
const (
	SafetyCarPitFactor        = 0.5
	VirtualSafetyCarPitFactor = 0.6
)

// PitLoss returns the time lost to a stop under the given condition.
func PitLoss(base float64, cond race.TrackCondition) float64 {
	switch cond {
	case race.SafetyCar:
		return base * SafetyCarPitFactor
	case race.VirtualSafetyCar:
		return base * VirtualSafetyCarPitFactor
	}
	return base
}
