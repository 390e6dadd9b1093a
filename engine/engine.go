package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
	"github.com/tifye/pitwall/strategy"
)

const publishQueueSize = 16

// Update is what the engine publishes after every clock signal.
type Update struct {
	State  *race.State  `json:"state"`
	Events []race.Event `json:"events"`
	// Laps holds the state after every lap of the tick, oldest first. The
	// last entry is State. Fast forward ticks drive several laps.
	Laps []*race.State `json:"-"`
}

// LapStates returns the per lap states of the update, falling back to
// State alone.
func (u Update) LapStates() []*race.State {
	if len(u.Laps) > 0 {
		return u.Laps
	}
	return []*race.State{u.State}
}

type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

type PublisherFunc func(ctx context.Context, u Update) error

func (f PublisherFunc) Publish(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// Engine owns the tick loop. The current state is swapped atomically at
// the end of every tick so readers always see a whole lap.
type Engine struct {
	logger  *log.Logger
	stepper *Stepper
	clock   *Clock
	metrics *Metrics

	state  atomic.Pointer[race.State]
	latch  disruption.Latch
	active *disruption.Event

	mu         sync.RWMutex
	publishers []Publisher
	updates    chan Update
}

func New(logger *log.Logger, initial *race.State, stepper *Stepper, clock *Clock, metrics *Metrics) *Engine {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(initial)
	assert.AssertNotNil(stepper)
	assert.AssertNotNil(clock)
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := &Engine{
		logger:  logger,
		stepper: stepper,
		clock:   clock,
		metrics: metrics,
		updates: make(chan Update, publishQueueSize),
	}
	e.state.Store(initial)
	return e
}

func (e *Engine) Subscribe(p Publisher) {
	assert.AssertNotNil(p)
	e.mu.Lock()
	e.publishers = append(e.publishers, p)
	e.mu.Unlock()
}

func (e *Engine) Clock() *Clock {
	return e.clock
}

// Snapshot returns the latest complete state. It must not be modified.
func (e *Engine) Snapshot() *race.State {
	return e.state.Load()
}

// Inject hands a disruption to the tick loop. Safe to call from any
// goroutine.
func (e *Engine) Inject(ev disruption.Event) {
	if e.latch.Put(ev) {
		e.logger.Debug("pending disruption replaced", "kind", ev.Kind)
	}
}

// Tick advances the race by laps. It is only called from the tick loop.
func (e *Engine) Tick(laps int) []race.Event {
	start := time.Now()

	if ev, ok := e.latch.Take(); ok {
		e.active = &ev
		e.metrics.disruptions.WithLabelValues(string(ev.Kind)).Inc()
		e.logger.Info("disruption", "kind", ev.Kind, "intensity", ev.Intensity, "id", ev.ID)
	}

	prev := e.state.Load()
	states, events := e.stepper.Walk(prev, laps, e.active)
	if len(states) == 0 {
		return nil
	}
	next := states[len(states)-1]
	e.state.Store(next)

	e.metrics.tickDuration.Observe(time.Since(start).Seconds())
	e.metrics.lap.Set(float64(next.Lap))
	e.metrics.activeCars.Set(float64(len(next.ActiveCars())))
	for _, ev := range events {
		e.metrics.events.WithLabelValues(string(ev.Kind)).Inc()
	}

	e.enqueue(Update{State: next, Events: events, Laps: states})
	return events
}

func (e *Engine) enqueue(u Update) {
	select {
	case e.updates <- u:
	default:
		e.metrics.droppedUpdates.Inc()
		e.logger.Warn("publish queue full, dropping update", "lap", u.State.Lap)
	}
}

// Run drives the race from the clock until ctx is done. Publishing
// happens on its own goroutine and never blocks a tick.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.publishLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.clock.Run(ctx)
	}()
	defer wg.Wait()

	e.logger.Info("race started", "laps", e.Snapshot().TotalLaps, "speed", e.clock.Speed())
	finished := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case laps := <-e.clock.C():
			e.Tick(laps)
			if st := e.Snapshot(); st.Finished() && !finished {
				finished = true
				leader, _ := st.Leader()
				e.logger.Info("race finished", "winner", leader.Code)
			}
		}
	}
}

func (e *Engine) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-e.updates:
			e.mu.RLock()
			publishers := make([]Publisher, len(e.publishers))
			copy(publishers, e.publishers)
			e.mu.RUnlock()

			for _, p := range publishers {
				if err := p.Publish(ctx, u); err != nil {
					e.logger.Error("publish", "err", err, "lap", u.State.Lap)
				}
			}
		}
	}
}

// StrategyView is the hero's strategic situation as exposed to advisory
// consumers.
type StrategyView struct {
	Car           string          `json:"car"`
	Lap           int             `json:"lap"`
	LapsRemaining int             `json:"lapsRemaining"`
	Compound      race.Compound   `json:"compound"`
	TyreAge       int             `json:"tyreAge"`
	TyreLife      int             `json:"tyreLife"`
	Stint         int             `json:"stint"`
	Position      int             `json:"position"`
	PitLoss       float64         `json:"pitLoss"`
	Decision      race.Decision   `json:"decision"`
	Conditions    race.Conditions `json:"conditions"`
}

// StrategyQuery describes the hero's current strategy. It reads the
// latest snapshot only.
func (e *Engine) StrategyQuery() StrategyView {
	return ViewOf(e.Snapshot())
}

func ViewOf(st *race.State) StrategyView {
	hero, _ := st.Hero()
	return StrategyView{
		Car:           hero.Code,
		Lap:           st.Lap,
		LapsRemaining: st.LapsRemaining(),
		Compound:      hero.Compound,
		TyreAge:       hero.TyreAge,
		TyreLife:      strategy.TyreLife(hero.Compound, hero.TyreAge),
		Stint:         hero.Stint(),
		Position:      hero.Position,
		PitLoss:       strategy.PitLoss(st.Track.PitLoss, st.Conditions.Track),
		Decision:      st.Decision,
		Conditions:    st.Conditions,
	}
}
