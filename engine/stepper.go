package engine

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
	"github.com/tifye/pitwall/strategy"
)

const DefaultHistoryLen = 50

type StepperOption func(*Stepper)

func WithHistoryLen(n int) StepperOption {
	return func(s *Stepper) {
		s.historyLen = n
	}
}

func WithNow(now func() time.Time) StepperOption {
	return func(s *Stepper) {
		s.now = now
	}
}

func WithOpponentPolicy(p strategy.OpponentPolicy) StepperOption {
	return func(s *Stepper) {
		s.opponents = p
	}
}

type victim struct {
	code   string
	effect disruption.VictimEffect
}

// Stepper advances a race state lap by lap. Apart from its seeded random
// source it only keeps the latches that must be stable across ticks: the
// active disruption and the lap it started, the pending victim, the last
// announced disruption and the car behind the hero.
type Stepper struct {
	logger     *log.Logger
	rnd        *rand.Rand
	model      strategy.Model
	strategist *strategy.Strategist
	opponents  strategy.OpponentPolicy
	pitLoss    float64
	historyLen int
	now        func() time.Time

	announcer   Announcer
	activeID    string
	activeSince int
	victim      *victim

	rival       string
	rivalGap    float64
	rivalPitted bool
}

func NewStepper(logger *log.Logger, track race.Track, seed1, seed2 uint64, opts ...StepperOption) *Stepper {
	assert.AssertNotNil(logger)
	assert.Assert(track.TotalLaps > 0, "track must have laps")

	model := strategy.NewModel(track)
	s := &Stepper{
		logger:     logger,
		rnd:        rand.New(rand.NewPCG(seed1, seed2)),
		model:      model,
		strategist: strategy.NewStrategist(model, track.PitLoss),
		opponents:  strategy.DefaultOpponentPolicy(),
		pitLoss:    track.PitLoss,
		historyLen: DefaultHistoryLen,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stepper) Strategist() *strategy.Strategist {
	return s.strategist
}

// Advance runs laps laps with ev as the active disruption and returns the
// new state with the events produced, oldest first. A finished race is
// returned unchanged.
func (s *Stepper) Advance(st *race.State, laps int, ev *disruption.Event) (*race.State, []race.Event) {
	states, events := s.Walk(st, laps, ev)
	if len(states) == 0 {
		return st, events
	}
	return states[len(states)-1], events
}

// Walk is Advance keeping the state after every lap driven, oldest first.
// It is empty when the race was already finished.
func (s *Stepper) Walk(st *race.State, laps int, ev *disruption.Event) ([]*race.State, []race.Event) {
	assert.AssertNotNil(st)

	var states []*race.State
	var events []race.Event
	for range laps {
		if st.Finished() {
			break
		}
		var evs []race.Event
		st, evs = s.step(st, ev)
		states = append(states, st)
		events = append(events, evs...)
	}
	return states, events
}

func (s *Stepper) step(prev *race.State, ev *disruption.Event) (*race.State, []race.Event) {
	st := prev.Clone()
	st.Lap = prev.Lap + 1
	lap := st.Lap
	now := s.now()
	lapsRemaining := prev.LapsRemaining()

	var events []race.Event
	if ev != nil && ev.ID != s.activeID {
		s.activate(prev, ev, lap)
	}
	if a, ok := s.announcer.Announce(ev, lap, now); ok {
		events = append(events, a)
	}

	eff := disruption.Neutral()
	if ev != nil {
		eff = disruption.EffectAt(ev, lap-s.activeSince)
	}
	pitLoss := strategy.PitLoss(s.pitLoss, eff.Condition)

	lapTimes := make([]float64, len(st.Cars))
	clean := make([]bool, len(st.Cars))
	for i := range st.Cars {
		c := &st.Cars[i]
		c.Pitted = false
		if !c.Active() {
			continue
		}

		var pit bool
		var compound race.Compound
		if c.Hero {
			pit, compound = s.decideHero(st, *c, lap, lapsRemaining, eff)
		} else {
			pit, compound = s.opponents.ShouldPit(*c, lapsRemaining, eff, s.rnd)
		}

		clean[i] = !eff.Caution()
		if pit {
			c.Compound = compound
			c.TyreAge = 0
			c.PitCount++
			c.Pitted = true
			clean[i] = false
		}

		lapTimes[i] = s.model.LapTime(strategy.CarInput(*c, lap), eff, s.rnd)
		if pit {
			lapTimes[i] += pitLoss
		}
	}

	events = append(events, s.resolveVictim(st, lapTimes, clean, eff, now)...)

	for i := range st.Cars {
		c := &st.Cars[i]
		if !c.Active() {
			continue
		}
		c.CumulativeTime += lapTimes[i]
		c.LastLapTime = lapTimes[i]
		if clean[i] && (c.BestLapTime <= 0 || lapTimes[i] < c.BestLapTime) {
			c.BestLapTime = lapTimes[i]
		}
		c.TyreAge++
	}

	rank(st)

	st.Conditions = race.Conditions{
		Track:           eff.Condition,
		CautionLapsLeft: max(eff.CautionLapsLeft-1, 0),
		Rainfall:        eff.Rainfall,
		TrackTempDelta:  eff.TrackTempDelta,
	}
	if ev != nil {
		st.Conditions.Disruption = string(ev.Kind)
		st.Conditions.DisruptionID = ev.ID
		st.Conditions.Intensity = string(ev.Intensity)
		st.Conditions.DisruptionLap = s.activeSince
	}

	s.watchRival(st)

	events = append(events, Diff(prev, st, now)...)
	st.Events = race.PrependEvents(prev.Events, events, s.historyLen)

	s.logger.Debug("lap", "lap", lap, "condition", eff.Condition, "events", len(events))
	return st, events
}

// activate records a newly observed disruption. Targeted kinds pick
// their victim here, once.
func (s *Stepper) activate(prev *race.State, ev *disruption.Event, lap int) {
	s.activeID = ev.ID
	s.activeSince = lap

	effect, ok := disruption.VictimFor(ev.Kind)
	if !ok {
		return
	}
	code, ok := disruption.SelectVictim(prev.Cars, s.rnd)
	if !ok {
		s.logger.Warn("no eligible victim", "disruption", ev.Kind, "id", ev.ID)
		return
	}
	s.victim = &victim{code: code, effect: effect}
	s.logger.Debug("victim selected", "disruption", ev.Kind, "car", code)
}

func (s *Stepper) resolveVictim(st *race.State, lapTimes []float64, clean []bool, eff disruption.Effect, now time.Time) []race.Event {
	v := s.victim
	s.victim = nil
	if v == nil {
		return nil
	}

	i := slices.IndexFunc(st.Cars, func(c race.Car) bool { return c.Code == v.code })
	if i < 0 || !st.Cars[i].Active() {
		return nil
	}
	c := &st.Cars[i]

	if v.effect.DNF {
		c.Status = race.Out
		c.RetiredLap = st.Lap
		lapTimes[i] = 0
		return nil
	}

	lapTimes[i] += v.effect.TimePenalty
	clean[i] = false

	var desc string
	kind := race.EventIncident
	switch v.effect.Kind {
	case disruption.MinorCrash:
		desc = fmt.Sprintf("%s spins, loses %.0fs", c.Code, v.effect.TimePenalty)
	case disruption.TyreFailure:
		desc = fmt.Sprintf("%s suffers a puncture", c.Code)
	case disruption.Penalty:
		kind = race.EventFlag
		desc = fmt.Sprintf("%s given a %.0f second time penalty", c.Code, v.effect.TimePenalty)
	}

	if v.effect.TyreChange && !c.Pitted {
		c.Compound = race.Medium
		if eff.ForcedCompound != race.NoCompound {
			c.Compound = eff.ForcedCompound
		}
		c.TyreAge = 0
		c.PitCount++
		c.Pitted = true
	}

	return []race.Event{race.NewEvent(st.Lap, now, kind, c.Code, desc)}
}

func (s *Stepper) decideHero(st *race.State, c race.Car, lap, lapsRemaining int, eff disruption.Effect) (bool, race.Compound) {
	in := strategy.PlanInput{
		Compound:      c.Compound,
		TyreAge:       c.TyreAge,
		BestLap:       c.BestLapTime,
		Position:      c.Position,
		Lap:           lap,
		LapsRemaining: lapsRemaining,
		Effect:        eff,
	}
	sit := strategy.Situation{
		Car:               c,
		LapsRemaining:     lapsRemaining,
		RivalBehindPitted: s.rivalPitted,
		RivalBehindGap:    s.rivalGap,
	}

	d, _ := s.strategist.Decide(in, sit)
	st.Decision = d
	if d.ShouldPitNow {
		s.logger.Info("hero pits", "car", c.Code, "lap", lap, "compound", d.TargetCompound, "reason", d.Reason)
	}
	return d.ShouldPitNow, d.TargetCompound
}

// watchRival remembers the car directly behind the hero and whether the
// previously remembered one has just pitted.
func (s *Stepper) watchRival(st *race.State) {
	s.rivalPitted = false
	if s.rival != "" {
		if c, ok := st.Car(s.rival); ok && c.Active() && c.Pitted {
			s.rivalPitted = true
		}
	}

	hero, ok := st.Hero()
	if !ok || !hero.Active() {
		s.rival = ""
		return
	}
	if s.rivalPitted {
		// Keep the gap from before the stop for the cover call.
		s.rival = ""
		return
	}
	behind, ok := st.CarAt(hero.Position + 1)
	if !ok {
		s.rival = ""
		return
	}
	s.rival = behind.Code
	s.rivalGap = float64(behind.IntervalToAhead)
}

// rank orders active cars by cumulative time, previous position breaking
// ties, and appends OUT cars in retirement order.
func rank(st *race.State) {
	active := make([]race.Car, 0, len(st.Cars))
	out := make([]race.Car, 0)
	for _, c := range st.Cars {
		if c.Active() {
			active = append(active, c)
		} else {
			out = append(out, c)
		}
	}

	slices.SortStableFunc(active, func(a, b race.Car) int {
		if c := cmp.Compare(a.CumulativeTime, b.CumulativeTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	slices.SortStableFunc(out, func(a, b race.Car) int {
		return cmp.Compare(a.RetiredLap, b.RetiredLap)
	})

	for i := range active {
		c := &active[i]
		c.Position = i + 1
		c.GapToLeader = race.Gap(c.CumulativeTime - active[0].CumulativeTime)
		if i == 0 {
			c.IntervalToAhead = 0
		} else {
			c.IntervalToAhead = race.Gap(c.CumulativeTime - active[i-1].CumulativeTime)
		}
	}
	for i := range out {
		out[i].GapToLeader = race.NoGap
		out[i].IntervalToAhead = race.NoGap
	}

	st.Cars = append(active, out...)
}
