package mux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
	"golang.org/x/time/rate"
)

const (
	TopicStandings  MessageType = "standings"
	TopicEvents     MessageType = "events"
	TopicStrategy   MessageType = "strategy"
	TopicDisruption MessageType = "disruption"
)

var ErrRateLimited = errors.New("disruption rate limit exceeded")

// RaceSource is the part of the engine the hub reads from and injects
// into.
type RaceSource interface {
	Snapshot() *race.State
	Inject(ev disruption.Event)
}

// StrategyReporter renders the strategy topic payload for a state.
type StrategyReporter func(st *race.State) any

type Standings struct {
	Lap        int             `json:"lap"`
	TotalLaps  int             `json:"total_laps"`
	Standings  []race.Car      `json:"standings"`
	Conditions race.Conditions `json:"conditions"`
}

func StandingsOf(st *race.State) Standings {
	return Standings{
		Lap:        st.Lap,
		TotalLaps:  st.TotalLaps,
		Standings:  st.Cars,
		Conditions: st.Conditions,
	}
}

// RaceHub exposes the race over a Mux. It publishes engine updates to
// the standings, events and strategy topics and feeds disruption
// messages back into the engine.
type RaceHub struct {
	logger  *log.Logger
	mux     *Mux
	source  RaceSource
	report  StrategyReporter
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRaceHub registers the race topics on m. report and limiter may be
// nil.
func NewRaceHub(logger *log.Logger, m *Mux, source RaceSource, report StrategyReporter, limiter *rate.Limiter) *RaceHub {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(m)
	assert.AssertNotNil(source)

	h := &RaceHub{
		logger:  logger,
		mux:     m,
		source:  source,
		report:  report,
		limiter: limiter,
		now:     time.Now,
	}

	m.RegisterHandler(TopicStandings, HandlerFunc(h.replyStandings))
	m.RegisterHandler(TopicEvents, HandlerFunc(h.replyEvents))
	m.RegisterHandler(TopicStrategy, HandlerFunc(h.replyStrategy))
	m.RegisterHandler(TopicDisruption, HandlerFunc(h.handleDisruption))

	m.AddSubscriptionHook(TopicStandings, func(c *Channel, _ MessageType, didSub bool) {
		if didSub {
			h.logOnErr(h.replyStandings(c, nil), c)
		}
	})
	m.AddSubscriptionHook(TopicStrategy, func(c *Channel, _ MessageType, didSub bool) {
		if didSub {
			h.logOnErr(h.replyStrategy(c, nil), c)
		}
	})
	return h
}

func (h *RaceHub) logOnErr(err error, c *Channel) {
	if err != nil {
		h.logger.Warn("reply on subscribe", "channelID", c.ID(), "err", err)
	}
}

// Publish implements engine.Publisher.
func (h *RaceHub) Publish(_ context.Context, u engine.Update) error {
	var errs []error

	if data, err := json.Marshal(StandingsOf(u.State)); err != nil {
		errs = append(errs, fmt.Errorf("marshal standings: %s", err))
	} else if err := h.mux.Broadcast(TopicStandings, data, nil); err != nil {
		errs = append(errs, fmt.Errorf("broadcast standings: %s", err))
	}

	if len(u.Events) > 0 {
		if data, err := json.Marshal(u.Events); err != nil {
			errs = append(errs, fmt.Errorf("marshal events: %s", err))
		} else if err := h.mux.Broadcast(TopicEvents, data, nil); err != nil {
			errs = append(errs, fmt.Errorf("broadcast events: %s", err))
		}
	}

	if data, err := json.Marshal(h.strategy(u.State)); err != nil {
		errs = append(errs, fmt.Errorf("marshal strategy: %s", err))
	} else if err := h.mux.Broadcast(TopicStrategy, data, nil); err != nil {
		errs = append(errs, fmt.Errorf("broadcast strategy: %s", err))
	}

	return errors.Join(errs...)
}

func (h *RaceHub) strategy(st *race.State) any {
	if h.report == nil {
		return engine.ViewOf(st)
	}
	return h.report(st)
}

func (h *RaceHub) reply(c *Channel, typ MessageType, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %s", typ, err)
	}
	return h.mux.SendChannel(c.ID(), typ, data)
}

func (h *RaceHub) replyStandings(c *Channel, _ []byte) error {
	return h.reply(c, TopicStandings, StandingsOf(h.source.Snapshot()))
}

func (h *RaceHub) replyEvents(c *Channel, _ []byte) error {
	return h.reply(c, TopicEvents, h.source.Snapshot().Events)
}

func (h *RaceHub) replyStrategy(c *Channel, _ []byte) error {
	return h.reply(c, TopicStrategy, h.strategy(h.source.Snapshot()))
}

// Ingest parses a disruption and hands it to the engine. Unknown kinds
// are dropped without error.
func (h *RaceHub) Ingest(data []byte) (disruption.Event, bool, error) {
	if h.limiter != nil && !h.limiter.Allow() {
		return disruption.Event{}, false, ErrRateLimited
	}

	ev, err := disruption.Parse(data, h.now())
	if errors.Is(err, disruption.ErrUnknownKind) {
		h.logger.Warn("ignoring disruption", "err", err)
		return disruption.Event{}, false, nil
	}
	if err != nil {
		return disruption.Event{}, false, err
	}

	h.source.Inject(ev)
	h.logger.Info("disruption received", "kind", ev.Kind, "intensity", ev.Intensity, "id", ev.ID)
	return ev, true, nil
}

func (h *RaceHub) handleDisruption(c *Channel, data []byte) error {
	_, _, err := h.Ingest(data)
	return err
}
