package strategy

import (
	"github.com/tifye/pitwall/race"
)

// Strategist combines the optimizer and the rules into the hero's call
// for the coming lap.
type Strategist struct {
	Optimizer *Optimizer
	Rules     Rules
}

func NewStrategist(model Model, pitLoss float64) *Strategist {
	return &Strategist{
		Optimizer: NewOptimizer(model, pitLoss),
		Rules:     DefaultRules(),
	}
}

func (s *Strategist) Decide(in PlanInput, sit Situation) (race.Decision, Plan) {
	if forced := in.Effect.ForcedCompound; forced != race.NoCompound && in.Compound != forced && in.LapsRemaining > 0 {
		return race.Decision{
			ShouldPitNow:    true,
			TargetCompound:  forced,
			ProjectedPitLap: in.Lap,
			Reason:          race.ReasonForced,
		}, Plan{Stops: []int{0}, Compounds: []race.Compound{forced}}
	}

	plan := s.Optimizer.Decide(in)
	d := race.Decision{
		IsTwoStop:      plan.TwoStop(),
		ProjectedTotal: plan.Total,
		Reason:         race.ReasonNone,
	}
	if len(plan.Stops) > 0 {
		d.ProjectedPitLap = in.Lap + plan.Stops[0]
		d.TargetCompound = plan.Compounds[0]
		d.Reason = race.ReasonOptimizer
	}
	if plan.TwoStop() {
		d.SecondPitLap = in.Lap + plan.Stops[1]
	}
	if plan.HasWindow {
		d.PitWindow = race.Window{Start: in.Lap + plan.Window[0], End: in.Lap + plan.Window[1]}
	}

	switch {
	case plan.PitNow():
		d.ShouldPitNow = true
		if in.Effect.Caution() {
			d.Reason = race.ReasonCheapPit
		}
	case s.Rules.Undercut(plan, sit, in.Effect):
		d = s.bringForward(d, in, plan, race.ReasonUndercut)
	case s.Rules.Cover(sit):
		d = s.bringForward(d, in, plan, race.ReasonCover)
	}
	return d, plan
}

// bringForward moves the first planned stop to this lap, picking the
// compound for the now longer stint.
func (s *Strategist) bringForward(d race.Decision, in PlanInput, plan Plan, reason race.DecisionReason) race.Decision {
	end := in.LapsRemaining
	if plan.TwoStop() {
		end = plan.Stops[1]
	}
	d.ShouldPitNow = true
	d.ProjectedPitLap = in.Lap
	d.TargetCompound = s.Optimizer.StintCompound(in, end)
	d.Reason = reason
	return d
}
