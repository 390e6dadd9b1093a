package strategy

import (
	"math"

	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

const (
	DefaultMinStint        = 3
	DefaultTwoStopWindow   = 30
	DefaultOneStopEpsilon  = 0.5
	DefaultTwoStopEpsilon  = 2.0
	DefaultWindowTolerance = 1.0
)

// Optimizer searches no stop, one stop and two stop strategies for the
// rest of the race by forward simulating every candidate lap by lap.
type Optimizer struct {
	Model   Model
	PitLoss float64

	MinStint      int
	TwoStopWindow int
	// A candidate replaces the current best only when it is faster by
	// more than its epsilon.
	OneStopEpsilon float64
	TwoStopEpsilon float64
	// WindowTolerance bounds the one stop laps reported as the pit window.
	WindowTolerance float64
}

func NewOptimizer(model Model, pitLoss float64) *Optimizer {
	return &Optimizer{
		Model:           model,
		PitLoss:         pitLoss,
		MinStint:        DefaultMinStint,
		TwoStopWindow:   DefaultTwoStopWindow,
		OneStopEpsilon:  DefaultOneStopEpsilon,
		TwoStopEpsilon:  DefaultTwoStopEpsilon,
		WindowTolerance: DefaultWindowTolerance,
	}
}

type PlanInput struct {
	Compound race.Compound
	TyreAge  int
	BestLap  float64
	Position int
	// Lap is the next lap to be driven.
	Lap           int
	LapsRemaining int
	Effect        disruption.Effect
}

// Plan is a strategy for the remaining laps. Stops are lap offsets from
// PlanInput.Lap; a stop at offset k means lap k is driven on the new set
// with the pit loss added.
type Plan struct {
	Stops       []int
	Compounds   []race.Compound
	Total       float64
	NoStopTotal float64
	// Window holds the first and last one stop offsets within tolerance
	// of the best one stop. HasWindow is false when no one stop fits.
	Window    [2]int
	HasWindow bool
}

func (p Plan) PitNow() bool {
	return len(p.Stops) > 0 && p.Stops[0] == 0
}

func (p Plan) TwoStop() bool {
	return len(p.Stops) == 2
}

// Decide returns the fastest plan. Degenerate windows, where fewer laps
// remain than a minimum stint, return the no stop plan.
func (o *Optimizer) Decide(in PlanInput) Plan {
	R := in.LapsRemaining
	if R <= 0 {
		return Plan{}
	}

	s := o.newSearch(in)
	noStop := s.simulate(nil)
	best := Plan{Total: noStop, NoStopTotal: noStop}
	if R < o.MinStint {
		return best
	}

	lastStop := R - o.MinStint
	oneStop := make([]float64, lastStop+1)
	for i := 0; i <= lastStop; i++ {
		stops := []int{i}
		t := s.simulate(stops)
		oneStop[i] = t
		if t < best.Total-o.OneStopEpsilon {
			best.Stops = stops
			best.Total = t
		}
	}

	for i := 0; i <= lastStop; i++ {
		for j := i + o.MinStint; j <= min(i+o.TwoStopWindow, lastStop); j++ {
			stops := []int{i, j}
			t := s.simulate(stops)
			if t < best.Total-o.TwoStopEpsilon {
				best.Stops = stops
				best.Total = t
			}
		}
	}

	bestOne := math.Inf(1)
	for _, t := range oneStop {
		bestOne = min(bestOne, t)
	}
	for i, t := range oneStop {
		if t > bestOne+o.WindowTolerance {
			continue
		}
		if !best.HasWindow {
			best.Window[0] = i
			best.HasWindow = true
		}
		best.Window[1] = i
	}

	best.Compounds = make([]race.Compound, len(best.Stops))
	for k, stop := range best.Stops {
		best.Compounds[k] = s.stintCompound(stop, stintEnd(best.Stops, k, R))
	}
	return best
}

// Simulate returns the deterministic time to complete the race with the
// given stop offsets.
func (o *Optimizer) Simulate(in PlanInput, stops ...int) float64 {
	return o.newSearch(in).simulate(stops)
}

// StintCompound is the fastest allowed compound for a stint of length
// laps starting at offset zero.
func (o *Optimizer) StintCompound(in PlanInput, length int) race.Compound {
	return o.newSearch(in).stintCompound(0, min(length, max(in.LapsRemaining, 1)))
}

type stint struct {
	start, end int
}

type search struct {
	o       *Optimizer
	in      PlanInput
	allowed []race.Compound
	effects []disruption.Effect
	picks   map[stint]race.Compound
}

func (o *Optimizer) newSearch(in PlanInput) *search {
	allowed := race.DryCompounds
	if in.Effect.ForcedCompound != race.NoCompound {
		allowed = []race.Compound{in.Effect.ForcedCompound}
	}

	// The current disruption is assumed to persist, apart from a caution
	// which ends after its remaining laps.
	effects := make([]disruption.Effect, max(in.LapsRemaining, 1))
	green := in.Effect
	green.Condition = race.Green
	green.CautionLapsLeft = 0
	for k := range effects {
		if in.Effect.Caution() && k < in.Effect.CautionLapsLeft {
			effects[k] = in.Effect
		} else {
			effects[k] = green
		}
	}

	return &search{
		o:       o,
		in:      in,
		allowed: allowed,
		effects: effects,
		picks:   map[stint]race.Compound{},
	}
}

func (s *search) lap(offset int, c race.Compound, age int) float64 {
	return s.o.Model.LapTime(LapInput{
		Compound: c,
		TyreAge:  age,
		BestLap:  s.in.BestLap,
		Position: s.in.Position,
		Lap:      s.in.Lap + offset,
	}, s.effects[offset], nil)
}

func (s *search) simulate(stops []int) float64 {
	R := s.in.LapsRemaining
	compound := s.in.Compound
	age := s.in.TyreAge
	next := 0

	total := 0.0
	for k := range R {
		if next < len(stops) && stops[next] == k {
			compound = s.stintCompound(k, stintEnd(stops, next, R))
			age = 0
			total += PitLoss(s.o.PitLoss, s.effects[k].Condition)
			next++
		}
		total += s.lap(k, compound, age)
		age++
	}
	return total
}

// stintCompound picks the allowed compound with the lowest simulated
// time over [start, end). Ties go to the softer compound.
func (s *search) stintCompound(start, end int) race.Compound {
	key := stint{start, end}
	if c, ok := s.picks[key]; ok {
		return c
	}

	best := s.allowed[0]
	bestTime := math.Inf(1)
	for _, c := range s.allowed {
		t := 0.0
		for k := start; k < end; k++ {
			t += s.lap(k, c, k-start)
		}
		if t < bestTime {
			best, bestTime = c, t
		}
	}
	s.picks[key] = best
	return best
}

func stintEnd(stops []int, i, remaining int) int {
	if i+1 < len(stops) {
		return stops[i+1]
	}
	return remaining
}

// PlanFor rebuilds the stops of a decision as offsets from lap, the next
// lap to be driven.
func PlanFor(d race.Decision, lap int) Plan {
	p := Plan{Total: d.ProjectedTotal}
	if d.ProjectedPitLap >= lap && !d.ShouldPitNow {
		p.Stops = append(p.Stops, d.ProjectedPitLap-lap)
		p.Compounds = append(p.Compounds, d.TargetCompound)
	}
	if d.SecondPitLap >= lap {
		p.Stops = append(p.Stops, d.SecondPitLap-lap)
		p.Compounds = append(p.Compounds, race.NoCompound)
	}
	return p
}
