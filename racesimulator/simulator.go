package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/mux"
	"github.com/tifye/pitwall/race"
)

const (
	maxIterations    = 10_000
	probabilityRange = 100
)

var intensities = []disruption.Intensity{disruption.Light, disruption.Moderate, disruption.Heavy}

type raceSimulatorConfig struct {
	// Chance out of 100 per step that a disruption is sent
	DisruptionProbability uint
	// Chance out of 100 that a step advances several laps at once
	BurstProbability uint
	// Chance out of 100 that a step skips to the flag
	SkipProbability uint
	MaxLapsPerStep  int
}

// Simulator runs one seeded race with random disruptions and viewers,
// checking the race invariants after every step.
type Simulator struct {
	logger *log.Logger
	seed1  uint64
	seed2  uint64
	rnd    *rand.Rand
	config raceSimulatorConfig

	stepper *engine.Stepper
	state   *race.State
	pending *disruption.Event
	active  *disruption.Event

	hub     *mux.RaceHub
	viewers *viewerSimulator

	numSteps       uint
	numDisruptions uint
	numIgnored     uint
}

func NewSimulator(seed1, seed2 uint64, roster *race.Roster, config SimulatorConfig, logger *log.Logger) (*Simulator, error) {
	st, err := race.NewState(roster)
	if err != nil {
		return nil, fmt.Errorf("new state: %s", err)
	}

	rnd := rand.New(rand.NewPCG(seed1, seed2))
	s := &Simulator{
		logger:  logger,
		seed1:   seed1,
		seed2:   seed2,
		rnd:     rnd,
		config:  config.race,
		stepper: engine.NewStepper(log.New(io.Discard), st.Track, rnd.Uint64(), rnd.Uint64()),
		state:   st,
	}

	m := mux.NewMux(log.New(io.Discard))
	s.hub = mux.NewRaceHub(log.New(io.Discard), m, s, nil, nil)
	s.viewers = newViewerSimulator(logger, m, rnd, config.viewers)
	return s, nil
}

func (s *Simulator) Snapshot() *race.State {
	return s.state
}

func (s *Simulator) Inject(ev disruption.Event) {
	s.pending = &ev
}

func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Simulator started",
		"seed1", s.seed1, "seed2", s.seed2,
	)

	for range maxIterations {
		if ctx.Err() != nil || s.state.Finished() {
			break
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}

	if err := s.finish(ctx); err != nil {
		return err
	}

	winner, _ := s.state.Leader()
	hero, _ := s.state.Hero()
	s.logger.Info("Simulator finished",
		"seed1", s.seed1, "seed2", s.seed2,
		"steps", s.numSteps, "disruptions", s.numDisruptions, "ignored", s.numIgnored,
		"winner", winner.Code, "hero", hero.Code, "heroPosition", hero.Position, "heroStops", hero.PitCount,
	)
	s.logger.Debug("viewers\n" + s.viewers.String())
	return nil
}

func (s *Simulator) Step(ctx context.Context) error {
	s.numSteps++
	s.viewers.Step()

	if Chance(s.rnd, s.config.DisruptionProbability) {
		s.sendDisruption()
	}

	laps := 1
	if Chance(s.rnd, s.config.BurstProbability) {
		laps = 1 + s.rnd.IntN(s.config.MaxLapsPerStep)
	}
	if Chance(s.rnd, s.config.SkipProbability) {
		laps = engine.SkipToEnd
	}

	return s.advance(ctx, laps)
}

// finish checks that a finished race is frozen.
func (s *Simulator) finish(ctx context.Context) error {
	if !s.state.Finished() {
		return nil
	}
	s.sendDisruption()
	return s.advance(ctx, 1)
}

func (s *Simulator) advance(ctx context.Context, laps int) error {
	if s.pending != nil {
		s.active, s.pending = s.pending, nil
	}

	next, events := s.stepper.Advance(s.state, laps, s.active)
	if err := checkInvariants(s.state, next, events); err != nil {
		return fmt.Errorf("lap %d: %s", next.Lap, err)
	}
	s.state = next

	if err := s.hub.Publish(ctx, engine.Update{State: next, Events: events}); err != nil {
		return fmt.Errorf("publish: %s", err)
	}
	return s.viewers.Verify(next.Lap)
}

func (s *Simulator) sendDisruption() {
	var data []byte
	kind := Pick(s.rnd, disruption.Kinds)
	switch {
	case Chance(s.rnd, 10):
		data = []byte("meteor_strike")
	case Chance(s.rnd, 30):
		data = []byte(kind)
	default:
		data, _ = json.Marshal(map[string]string{
			"event":     string(kind),
			"intensity": string(Pick(s.rnd, intensities)),
		})
	}

	_, ok, err := s.hub.Ingest(data)
	if err != nil {
		s.logger.Debug("disruption rejected", "err", err)
	}
	if ok {
		s.numDisruptions++
	} else {
		s.numIgnored++
	}
}
