package strategy

import (
	"math/rand/v2"

	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

const (
	DefaultRacePaceDelta = 0.8
	DefaultFuelEffect    = 1.5
	DefaultVariance      = 0.25

	SafetyCarLapFactor        = 1.40
	VirtualSafetyCarLapFactor = 1.30
)

type Model struct {
	AnchorLap float64
	TotalLaps int
	// RacePaceDelta is added to a car's best lap to get its race pace.
	RacePaceDelta float64
	// FuelEffect is the time lost on lap one to a full tank. It decreases
	// linearly to zero at the flag.
	FuelEffect float64
	// Variance bounds the uniform random micro variance per lap.
	Variance float64
}

func NewModel(track race.Track) Model {
	return Model{
		AnchorLap:     track.AnchorLap,
		TotalLaps:     track.TotalLaps,
		RacePaceDelta: DefaultRacePaceDelta,
		FuelEffect:    DefaultFuelEffect,
		Variance:      DefaultVariance,
	}
}

type LapInput struct {
	Compound race.Compound
	TyreAge  int
	BestLap  float64
	Position int
	// Lap is the lap number being driven, starting at 1.
	Lap int
}

func CarInput(c race.Car, lap int) LapInput {
	return LapInput{
		Compound: c.Compound,
		TyreAge:  c.TyreAge,
		BestLap:  c.BestLapTime,
		Position: c.Position,
		Lap:      lap,
	}
}

// Baseline is the expected green flag lap on fresh rubber before
// degradation and penalties.
func (m Model) Baseline(in LapInput) float64 {
	pace := in.BestLap
	if pace <= 0 {
		pace = m.AnchorLap
	}
	fuel := 0.0
	if m.TotalLaps > 0 {
		fuel = m.FuelEffect * (1 - float64(in.Lap)/float64(m.TotalLaps))
	}
	return pace + m.RacePaceDelta + max(fuel, 0)
}

// LapTime returns the lap duration in seconds. A nil rnd disables the
// micro variance.
func (m Model) LapTime(in LapInput, eff disruption.Effect, rnd *rand.Rand) float64 {
	if eff.Caution() {
		return m.CautionLap(eff.Condition)
	}

	mult := eff.DegMultiplier
	if mult <= 0 {
		mult = 1
	}

	t := m.Baseline(in) + Degradation(in.Compound, in.TyreAge, mult) + eff.Penalty(in.Position, in.Compound)
	if rnd != nil && m.Variance > 0 {
		t += (rnd.Float64()*2 - 1) * m.Variance
	}
	return t
}

// CautionLap is the uniform lap every car runs under a caution.
func (m Model) CautionLap(cond race.TrackCondition) float64 {
	switch cond {
	case race.SafetyCar:
		return m.AnchorLap * SafetyCarLapFactor
	case race.VirtualSafetyCar:
		return m.AnchorLap * VirtualSafetyCarLapFactor
	}
	return m.AnchorLap
}
