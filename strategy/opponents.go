package strategy

import (
	"math/rand/v2"

	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

// OpponentPolicy is the threshold heuristic every car but the hero
// follows. Opponents pit once their tyres pass a compound specific age,
// give or take Jitter laps.
type OpponentPolicy struct {
	Jitter int
	// FinalLaps suppresses threshold stops this close to the flag.
	FinalLaps int
	// ForcedPitChance is the chance out of 100 per lap that a car on the
	// wrong tyres for the conditions comes in.
	ForcedPitChance uint
}

func DefaultOpponentPolicy() OpponentPolicy {
	return OpponentPolicy{
		Jitter:          2,
		FinalLaps:       3,
		ForcedPitChance: 60,
	}
}

func (p OpponentPolicy) ShouldPit(c race.Car, lapsRemaining int, eff disruption.Effect, rnd *rand.Rand) (bool, race.Compound) {
	if lapsRemaining <= 0 {
		return false, race.NoCompound
	}

	if forced := eff.ForcedCompound; forced != race.NoCompound && c.Compound != forced {
		if rnd.UintN(100) < p.ForcedPitChance {
			return true, forced
		}
		return false, race.NoCompound
	}

	if !eff.Rainfall && c.Compound.IsWet() {
		if rnd.UintN(100) < p.ForcedPitChance {
			return true, OpponentCompound(lapsRemaining)
		}
		return false, race.NoCompound
	}

	if lapsRemaining <= p.FinalLaps {
		return false, race.NoCompound
	}

	limit := Params(c.Compound).PitLimit + rnd.IntN(2*p.Jitter+1) - p.Jitter
	if c.TyreAge < limit {
		return false, race.NoCompound
	}

	if eff.ForcedCompound != race.NoCompound {
		return true, eff.ForcedCompound
	}
	return true, OpponentCompound(lapsRemaining)
}

// OpponentCompound is the fixed compound choice opponents make for the
// remaining distance.
func OpponentCompound(lapsRemaining int) race.Compound {
	switch {
	case lapsRemaining <= Params(race.Soft).Cliff:
		return race.Soft
	case lapsRemaining <= Params(race.Medium).Cliff:
		return race.Medium
	}
	return race.Hard
}
