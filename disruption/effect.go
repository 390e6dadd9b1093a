package disruption

import (
	"math/rand/v2"

	"github.com/tifye/pitwall/race"
)

const (
	TrafficFrom = 6
	TrafficTo   = 15
)

// Effect is the global influence of the active disruption on a single
// lap.
type Effect struct {
	Kind            Kind
	Condition       race.TrackCondition
	CautionLapsLeft int
	Rainfall        bool
	TrackTempDelta  float64
	DegMultiplier   float64

	// SlickPenalty is added to slick compounds while it rains.
	SlickPenalty float64
	// IntermediatePenalty is added to intermediates in heavy rain.
	IntermediatePenalty float64
	// TrafficPenalty is added to cars between TrafficFrom and TrafficTo.
	TrafficPenalty float64

	// ForcedCompound is the compound every car must run, NoCompound when
	// the choice is free.
	ForcedCompound race.Compound
}

// Neutral is the green flag effect with no disruption.
func Neutral() Effect {
	return Effect{
		Condition:      race.Green,
		DegMultiplier:  1,
		ForcedCompound: race.NoCompound,
	}
}

func (e Effect) Caution() bool {
	return e.Condition.Caution()
}

// Penalty is the additive lap time penalty for a car running compound c
// at position pos.
func (e Effect) Penalty(pos int, c race.Compound) float64 {
	p := 0.0
	if e.Rainfall {
		if c.IsSlick() {
			p += e.SlickPenalty
		}
		if c == race.Intermediate {
			p += e.IntermediatePenalty
		}
	}
	if pos >= TrafficFrom && pos <= TrafficTo {
		p += e.TrafficPenalty
	}
	return p
}

// Duration is the number of laps the global effect of kind k lasts. Zero
// means it lasts until replaced.
func Duration(k Kind) int {
	switch k {
	case MinorCrash:
		return 2
	case MajorCrash:
		return 4
	case Traffic:
		return 5
	case TyreDegSpike:
		return 8
	}
	return 0
}

// EffectAt returns the global effect of ev on the lap that is lapsSince
// laps after the lap it was first observed on. A nil ev is Neutral.
func EffectAt(ev *Event, lapsSince int) Effect {
	eff := Neutral()
	if ev == nil {
		return eff
	}
	eff.Kind = ev.Kind

	if d := Duration(ev.Kind); d > 0 && lapsSince >= d {
		return eff
	}

	switch ev.Kind {
	case Rain:
		eff.Rainfall = true
		eff.TrackTempDelta = -10
		eff.DegMultiplier = 1.8
		eff.ForcedCompound = race.Intermediate
		switch ev.Intensity {
		case Light:
			eff.SlickPenalty = 6
		case Heavy:
			eff.SlickPenalty = 22
			eff.IntermediatePenalty = 4
			eff.ForcedCompound = race.Wet
		default:
			eff.SlickPenalty = 15
		}
	case Heatwave:
		eff.TrackTempDelta = 15
		switch ev.Intensity {
		case Light:
			eff.DegMultiplier = 1.6
		case Heavy:
			eff.DegMultiplier = 2.4
		default:
			eff.DegMultiplier = 2.0
		}
	case TyreDegSpike:
		eff.DegMultiplier = 2.5
	case Traffic:
		eff.TrafficPenalty = 1.5
		if ev.Intensity == Heavy {
			eff.TrafficPenalty = 2.5
		}
	case MinorCrash:
		eff.Condition = race.VirtualSafetyCar
		eff.CautionLapsLeft = Duration(MinorCrash) - lapsSince
	case MajorCrash:
		eff.Condition = race.SafetyCar
		eff.CautionLapsLeft = Duration(MajorCrash) - lapsSince
	}
	return eff
}

// VictimEffect is the one time consequence for the car picked by a
// targeted disruption.
type VictimEffect struct {
	Kind        Kind
	DNF         bool
	TimePenalty float64
	TyreChange  bool
}

func VictimFor(k Kind) (VictimEffect, bool) {
	switch k {
	case MinorCrash:
		return VictimEffect{Kind: k, TimePenalty: 8}, true
	case MajorCrash:
		return VictimEffect{Kind: k, DNF: true}, true
	case TyreFailure:
		return VictimEffect{Kind: k, TimePenalty: 20, TyreChange: true}, true
	case Penalty:
		return VictimEffect{Kind: k, TimePenalty: 5}, true
	}
	return VictimEffect{}, false
}

// SelectVictim picks uniformly among active cars that are not the hero.
// ok is false when no car is eligible.
func SelectVictim(cars []race.Car, rnd *rand.Rand) (code string, ok bool) {
	eligible := make([]string, 0, len(cars))
	for _, c := range cars {
		if c.Active() && !c.Hero {
			eligible = append(eligible, c.Code)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}
	return eligible[rnd.IntN(len(eligible))], true
}

// Active rebuilds the active disruption recorded in a state's conditions
// and returns its effect on the lap after lap. It returns Neutral when no
// disruption is active.
func Active(c race.Conditions, lap int) Effect {
	if c.DisruptionID == "" {
		return Neutral()
	}
	ev := Event{
		ID:        c.DisruptionID,
		Kind:      Kind(c.Disruption),
		Intensity: Intensity(c.Intensity),
	}
	return EffectAt(&ev, lap+1-c.DisruptionLap)
}
