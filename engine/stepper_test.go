package engine

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

var epoch = time.Date(2026, 9, 6, 15, 0, 0, 0, time.UTC)

func fixedNow() time.Time {
	return epoch
}

func newGrid(t *testing.T) *race.State {
	t.Helper()
	st, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)
	return st
}

func newStepper(t *testing.T, st *race.State, seed uint64) *Stepper {
	t.Helper()
	return NewStepper(log.New(io.Discard), st.Track, seed, seed^0x9e3779b97f4a7c15, WithNow(fixedNow))
}

func gridFromYAML(t *testing.T, doc string) *race.State {
	t.Helper()
	r, err := race.ParseRoster([]byte(doc))
	require.NoError(t, err)
	st, err := race.NewState(r)
	require.NoError(t, err)
	return st
}

func countKind(events []race.Event, kind race.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func assertStandings(t *testing.T, st *race.State) {
	t.Helper()

	active := st.ActiveCars()
	seen := make(map[int]bool, len(active))
	leaders := 0
	for i, c := range active {
		assert.Equal(t, i+1, c.Position, "lap %d car %s", st.Lap, c.Code)
		assert.False(t, seen[c.Position], "duplicate position %d", c.Position)
		seen[c.Position] = true
		if c.GapToLeader == 0 {
			leaders++
		}
		if i > 0 {
			assert.GreaterOrEqual(t, c.CumulativeTime, active[i-1].CumulativeTime)
		}
	}
	assert.Len(t, seen, len(active))
	if len(active) > 0 {
		assert.GreaterOrEqual(t, leaders, 1)
		assert.Equal(t, race.Gap(0), active[0].GapToLeader)
	}

	for _, c := range st.Cars[len(active):] {
		assert.Equal(t, race.Out, c.Status)
		assert.Equal(t, race.NoGap, c.GapToLeader)
	}
}

func TestAdvanceInvariants(t *testing.T) {
	script := map[int]disruption.Kind{
		8:  disruption.MinorCrash,
		12: disruption.Rain,
		20: disruption.MajorCrash,
		26: disruption.Heatwave,
		31: disruption.Penalty,
		35: disruption.TyreFailure,
		38: disruption.Traffic,
		44: disruption.TyreDegSpike,
	}

	for seed := range uint64(6) {
		prev := newGrid(t)
		s := newStepper(t, prev, seed)

		var active *disruption.Event
		for !prev.Finished() {
			if kind, ok := script[prev.Lap+1]; ok {
				ev := disruption.New(kind, disruption.Moderate, epoch)
				active = &ev
			}

			next, events := s.Advance(prev, 1, active)
			require.Equal(t, prev.Lap+1, next.Lap)
			assertStandings(t, next)

			for _, c := range next.Cars {
				p, ok := prev.Car(c.Code)
				require.True(t, ok)
				assert.GreaterOrEqual(t, c.CumulativeTime, p.CumulativeTime, "seed %d lap %d car %s", seed, next.Lap, c.Code)
				if !p.Active() {
					assert.False(t, c.Active(), "car %s came back from OUT", c.Code)
				}
			}

			if next.Conditions.Track.Caution() {
				assertNoOvertakesUnderCaution(t, prev, next, events)
			}
			prev = next
		}

		assert.Equal(t, prev.TotalLaps, prev.Lap)
	}
}

func assertNoOvertakesUnderCaution(t *testing.T, prev, next *race.State, events []race.Event) {
	t.Helper()

	excluded := map[string]bool{}
	for _, e := range events {
		if e.Car != "" && (e.Kind == race.EventIncident || e.Kind == race.EventFlag) {
			excluded[e.Car] = true
		}
	}
	for _, c := range next.Cars {
		if c.Pitted || !c.Active() {
			excluded[c.Code] = true
		}
	}

	order := func(s *race.State) []string {
		var codes []string
		for _, c := range s.ActiveCars() {
			if !excluded[c.Code] {
				codes = append(codes, c.Code)
			}
		}
		return codes
	}
	assert.Equal(t, order(prev), order(next), "order changed under caution on lap %d", next.Lap)
	for _, e := range events {
		assert.NotContains(t, e.Description, "overtakes", "lap %d", next.Lap)
	}
}

func TestMajorCrashScenario(t *testing.T) {
	st := newGrid(t)
	require.Len(t, st.Cars, 20)
	s := newStepper(t, st, 42)

	st, _ = s.Advance(st, 9, nil)
	require.Equal(t, 9, st.Lap)
	require.Len(t, st.ActiveCars(), 20)

	ev := disruption.New(disruption.MajorCrash, disruption.Moderate, epoch)
	next, events := s.Advance(st, 1, &ev)
	require.Equal(t, 10, next.Lap)

	var out []race.Car
	for _, c := range next.Cars {
		if !c.Active() {
			out = append(out, c)
		}
	}
	require.Len(t, out, 1)
	victim := out[0]
	assert.False(t, victim.Hero)
	assert.Equal(t, 10, victim.RetiredLap)
	assert.Equal(t, 1, countKind(events, race.EventIncident))
	assert.Equal(t, race.SafetyCar, next.Conditions.Track)

	for _, c := range next.Cars {
		if c.Code == victim.Code {
			continue
		}
		p, _ := st.Car(c.Code)
		assert.Equal(t, p.PitCount, c.PitCount, "car %s", c.Code)
	}
	assert.NotEqual(t, race.ReasonUndercut, next.Decision.Reason)

	frozen, _ := next.Car(victim.Code)
	after, _ := s.Advance(next, 3, &ev)
	still, _ := after.Car(victim.Code)
	assert.Equal(t, frozen.CumulativeTime, still.CumulativeTime)
	assert.Equal(t, race.Out, still.Status)
	assert.Len(t, after.ActiveCars(), 19)
}

func TestDisruptionDedup(t *testing.T) {
	st := newGrid(t)
	s := newStepper(t, st, 7)
	st, _ = s.Advance(st, 4, nil)

	ev := disruption.New(disruption.Heatwave, disruption.Moderate, epoch)
	st, first := s.Advance(st, 1, &ev)
	same := ev
	st, second := s.Advance(st, 1, &same)

	assert.Equal(t, 1, countKind(first, race.EventWeather))
	assert.Equal(t, 0, countKind(second, race.EventWeather))
	assert.Equal(t, 1, countKind(st.Events, race.EventWeather))

	flag := disruption.New(disruption.MinorCrash, disruption.Moderate, epoch)
	_, third := s.Advance(st, 2, &flag)
	flags := 0
	for _, e := range third {
		if e.Kind == race.EventFlag && e.Car == "" {
			flags++
		}
	}
	assert.Equal(t, 1, flags)
}

const rainRoster = `track: {name: Spa, total_laps: 30}
cars:
  - {code: HER, grid: 1, compound: SOFT, hero: true}
  - {code: AAA, grid: 2, compound: MEDIUM}
  - {code: BBB, grid: 3, compound: HARD}
  - {code: CCC, grid: 4, compound: MEDIUM}`

func TestRainForcesIntermediates(t *testing.T) {
	st := gridFromYAML(t, rainRoster)
	s := newStepper(t, st, 3)
	st, _ = s.Advance(st, 5, nil)

	hero, _ := st.Hero()
	require.Equal(t, race.Soft, hero.Compound)

	ev := disruption.New(disruption.Rain, disruption.Moderate, epoch)
	next, events := s.Advance(st, 1, &ev)

	d := next.Decision
	assert.True(t, d.ShouldPitNow)
	assert.Equal(t, race.Intermediate, d.TargetCompound)
	assert.Equal(t, race.ReasonForced, d.Reason)

	hero, _ = next.Hero()
	assert.Equal(t, race.Intermediate, hero.Compound)
	assert.Equal(t, 1, hero.PitCount)
	assert.Equal(t, 1, countKind(events, race.EventWeather))
	assert.True(t, next.Conditions.Rainfall)
}

func TestRaceCompleteIsNoop(t *testing.T) {
	st := gridFromYAML(t, `track: {total_laps: 3}
cars:
  - {code: HER, grid: 1, compound: MEDIUM, hero: true}
  - {code: AAA, grid: 2, compound: MEDIUM}`)
	s := newStepper(t, st, 1)

	final, events := s.Advance(st, SkipToEnd, nil)
	require.True(t, final.Finished())
	assert.Equal(t, 3, final.Lap)

	chequered := 0
	starts := 0
	for _, e := range events {
		switch e.Kind {
		case race.EventFlag:
			if e.Lap == 3 {
				chequered++
			}
			if e.Lap == 1 {
				starts++
			}
		}
	}
	assert.Equal(t, 1, chequered)
	assert.Equal(t, 1, starts)

	again, events := s.Advance(final, 5, nil)
	assert.Same(t, final, again)
	assert.Empty(t, events)
}

func TestNoEligibleVictim(t *testing.T) {
	st := gridFromYAML(t, `track: {total_laps: 10}
cars:
  - {code: HER, grid: 1, compound: MEDIUM, hero: true}
  - {code: AAA, grid: 2, compound: MEDIUM}`)
	st.Cars[1].Status = race.Out
	s := newStepper(t, st, 1)

	ev := disruption.New(disruption.MajorCrash, disruption.Moderate, epoch)
	next, events := s.Advance(st, 1, &ev)

	assert.Equal(t, race.SafetyCar, next.Conditions.Track)
	assert.Equal(t, 0, countKind(events, race.EventIncident))
	assert.Len(t, next.ActiveCars(), 1)
}

func TestVictimEffectsApplyOnce(t *testing.T) {
	st := newGrid(t)
	s := newStepper(t, st, 11)
	st, _ = s.Advance(st, 3, nil)

	ev := disruption.New(disruption.Penalty, disruption.Moderate, epoch)
	st, events := s.Advance(st, 1, &ev)
	penalties := 0
	for _, e := range events {
		if e.Kind == race.EventFlag && e.Car != "" {
			penalties++
		}
	}
	assert.Equal(t, 1, penalties)

	_, events = s.Advance(st, 3, &ev)
	for _, e := range events {
		assert.False(t, e.Kind == race.EventFlag && e.Car != "", "penalty applied twice")
	}
}

func TestTyreFailureChangesTyres(t *testing.T) {
	st := newGrid(t)
	s := newStepper(t, st, 5)
	st, _ = s.Advance(st, 6, nil)

	ev := disruption.New(disruption.TyreFailure, disruption.Moderate, epoch)
	next, events := s.Advance(st, 1, &ev)

	var victim string
	for _, e := range events {
		if e.Kind == race.EventIncident {
			victim = e.Car
		}
	}
	require.NotEmpty(t, victim)
	c, _ := next.Car(victim)
	p, _ := st.Car(victim)
	assert.Equal(t, p.PitCount+1, c.PitCount)
	assert.Equal(t, 1, c.TyreAge)
	assert.Greater(t, c.LastLapTime, 100.0)
}

func TestDeterministic(t *testing.T) {
	run := func() *race.State {
		st := newGrid(t)
		s := newStepper(t, st, 99)
		ev := disruption.New(disruption.MinorCrash, disruption.Moderate, epoch)
		ev.ID = "fixed"
		st, _ = s.Advance(st, 15, nil)
		st, _ = s.Advance(st, 38, &ev)
		return st
	}

	a, b := run(), run()
	require.Equal(t, len(a.Cars), len(b.Cars))
	for i := range a.Cars {
		assert.Equal(t, a.Cars[i].Code, b.Cars[i].Code)
		assert.Equal(t, a.Cars[i].CumulativeTime, b.Cars[i].CumulativeTime)
		assert.Equal(t, a.Cars[i].PitCount, b.Cars[i].PitCount)
	}
}

func TestRankAllOut(t *testing.T) {
	st := &race.State{
		Cars: []race.Car{
			{Code: "AAA", Status: race.Out, Position: 2, RetiredLap: 5},
			{Code: "BBB", Status: race.Out, Position: 1, RetiredLap: 3},
		},
	}
	rank(st)

	_, ok := st.Leader()
	assert.False(t, ok)
	assert.Equal(t, "BBB", st.Cars[0].Code)
	for _, c := range st.Cars {
		assert.Equal(t, race.NoGap, c.GapToLeader)
		assert.Equal(t, race.NoGap, c.IntervalToAhead)
	}
}

func TestRankTieKeepsOrder(t *testing.T) {
	st := &race.State{
		Cars: []race.Car{
			{Code: "BBB", Status: race.Racing, Position: 2, CumulativeTime: 100},
			{Code: "AAA", Status: race.Racing, Position: 1, CumulativeTime: 100},
			{Code: "CCC", Status: race.Racing, Position: 3, CumulativeTime: 99},
		},
	}
	rank(st)

	assert.Equal(t, []string{"CCC", "AAA", "BBB"}, []string{st.Cars[0].Code, st.Cars[1].Code, st.Cars[2].Code})
	assert.Equal(t, race.Gap(1), st.Cars[1].GapToLeader)
	assert.Equal(t, race.Gap(0), st.Cars[2].IntervalToAhead)
}

func TestHeroDecisionEveryLap(t *testing.T) {
	st := newGrid(t)
	s := newStepper(t, st, 21)

	pits := 0
	for !st.Finished() {
		st, _ = s.Advance(st, 1, nil)
		hero, _ := st.Hero()
		if hero.Pitted {
			pits++
			assert.True(t, st.Decision.ShouldPitNow)
		}
	}
	hero, _ := st.Hero()
	assert.Equal(t, pits, hero.PitCount)
	assert.GreaterOrEqual(t, hero.PitCount, 1)
}
