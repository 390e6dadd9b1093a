package strategy

import (
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

const (
	DefaultUndercutGap     = 1.5
	DefaultUndercutHorizon = 3
	DefaultCoverGap        = 2.5
	DefaultCoverMinTyreAge = 6
)

// Rules react to the cars around the hero. They can only bring a stop
// forward.
type Rules struct {
	UndercutGap     float64
	UndercutHorizon int
	CoverGap        float64
	CoverMinTyreAge int
	MinStint        int
}

func DefaultRules() Rules {
	return Rules{
		UndercutGap:     DefaultUndercutGap,
		UndercutHorizon: DefaultUndercutHorizon,
		CoverGap:        DefaultCoverGap,
		CoverMinTyreAge: DefaultCoverMinTyreAge,
		MinStint:        DefaultMinStint,
	}
}

// Situation is what the pit wall sees around the hero at the start of a
// lap.
type Situation struct {
	Car           race.Car
	LapsRemaining int
	// RivalBehindPitted is set when the car that was directly behind the
	// hero pitted on the previous lap. RivalBehindGap is its interval to
	// the hero before it stopped.
	RivalBehindPitted bool
	RivalBehindGap    float64
}

// Undercut reports whether the hero should stop now to jump the car
// directly ahead. Under a caution the field runs one uniform lap, so stops
// come only from the optimizer's cheap pit plan.
func (r Rules) Undercut(plan Plan, sit Situation, eff disruption.Effect) bool {
	if eff.Caution() {
		return false
	}
	c := sit.Car
	if c.Position <= 1 || c.IntervalToAhead == race.NoGap {
		return false
	}
	if len(plan.Stops) == 0 || plan.Stops[0] > r.UndercutHorizon {
		return false
	}
	return float64(c.IntervalToAhead) < r.UndercutGap
}

// Cover reports whether the hero should respond to a stop by the car
// behind.
func (r Rules) Cover(sit Situation) bool {
	if !sit.RivalBehindPitted || sit.RivalBehindGap >= r.CoverGap {
		return false
	}
	return sit.Car.TyreAge >= r.CoverMinTyreAge && sit.LapsRemaining >= r.MinStint
}
