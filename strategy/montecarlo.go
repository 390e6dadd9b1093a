package strategy

import (
	"math"
	"math/rand/v2"

	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

const (
	DefaultRuns = 2000
	// lapSigma is the per lap spread of the projection noise.
	lapSigma = 0.5
)

type Projection struct {
	// MeanTotal is the hero's mean projected race time.
	MeanTotal float64 `json:"meanTotal"`
	// WinProbability is in percent.
	WinProbability int `json:"winProbability"`
	Runs           int `json:"runs"`
}

// Project runs a Monte Carlo over the remaining laps. The hero follows
// plan; every other active car makes a single stop when its tyres reach
// their opponent pit limit.
func (o *Optimizer) Project(st *race.State, plan Plan, eff disruption.Effect, runs int, rnd *rand.Rand) Projection {
	hero, ok := st.Hero()
	R := st.LapsRemaining()
	if !ok || !hero.Active() || runs <= 0 {
		return Projection{}
	}
	if R == 0 {
		won := 0
		if hero.Position == 1 {
			won = 100
		}
		return Projection{MeanTotal: hero.CumulativeTime, WinProbability: won, Runs: runs}
	}

	type projected struct {
		hero  bool
		total float64
	}
	cars := make([]projected, 0, len(st.Cars))
	for _, c := range st.ActiveCars() {
		in := PlanInput{
			Compound:      c.Compound,
			TyreAge:       c.TyreAge,
			BestLap:       c.BestLapTime,
			Position:      c.Position,
			Lap:           st.Lap + 1,
			LapsRemaining: R,
			Effect:        eff,
		}
		stops := plan.Stops
		if !c.Hero {
			stops = nil
			if at := Params(c.Compound).PitLimit - c.TyreAge; at < R-o.MinStint {
				stops = []int{max(at, 0)}
			}
		}
		cars = append(cars, projected{
			hero:  c.Hero,
			total: c.CumulativeTime + o.Simulate(in, stops...),
		})
	}

	sigma := lapSigma * math.Sqrt(float64(R))
	wins := 0
	sum := 0.0
	for range runs {
		heroTotal := 0.0
		best := math.Inf(1)
		for _, c := range cars {
			t := c.total + rnd.NormFloat64()*sigma
			if c.hero {
				heroTotal = t
				continue
			}
			best = min(best, t)
		}
		sum += heroTotal
		if heroTotal < best {
			wins++
		}
	}

	return Projection{
		MeanTotal:      sum / float64(runs),
		WinProbability: int(math.Round(100 * float64(wins) / float64(runs))),
		Runs:           runs,
	}
}
