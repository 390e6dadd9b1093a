package main

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tifye/pitwall/race"
)

func TestSimulatorSeeds(t *testing.T) {
	seeds := [][2]uint64{{1, 2}, {42, 7}, {0xdeadbeef, 0xcafe}}
	for _, seed := range seeds {
		sim, err := NewSimulator(seed[0], seed[1], race.DefaultRoster(), V1Config(), log.New(io.Discard))
		require.NoError(t, err)
		require.NoError(t, sim.Run(context.Background()), "seed1=%d seed2=%d", seed[0], seed[1])
		assert.True(t, sim.state.Finished())
	}
}

func TestCheckInvariantsCatchesCorruption(t *testing.T) {
	prev, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)

	sim, err := NewSimulator(1, 2, race.DefaultRoster(), V1Config(), log.New(io.Discard))
	require.NoError(t, err)
	next, events := sim.stepper.Advance(prev, 1, nil)
	require.NoError(t, checkInvariants(prev, next, events))

	swapped := next.Clone()
	swapped.Cars[0].Position, swapped.Cars[1].Position = 2, 1
	assert.Error(t, checkInvariants(prev, swapped, nil))

	backwards := next.Clone()
	backwards.Cars[5].CumulativeTime = 0
	assert.Error(t, checkInvariants(prev, backwards, nil))

	stalled := next.Clone()
	stalled.Lap = prev.Lap
	assert.Error(t, checkInvariants(prev, stalled, nil))
}
