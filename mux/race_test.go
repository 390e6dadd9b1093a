package mux

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
	"golang.org/x/time/rate"
)

var epochForHub = time.Date(2024, 9, 1, 13, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	st       *race.State
	injected []disruption.Event
}

func (f *fakeSource) Snapshot() *race.State {
	return f.st
}

func (f *fakeSource) Inject(ev disruption.Event) {
	f.mu.Lock()
	f.injected = append(f.injected, ev)
	f.mu.Unlock()
}

type recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *recorder) Write(data []byte) (int, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return len(data), nil
}

func (r *recorder) types() []MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]MessageType, 0, len(r.messages))
	for _, m := range r.messages {
		types = append(types, m.Type)
	}
	return types
}

func newHub(t *testing.T, limiter *rate.Limiter) (*Mux, *RaceHub, *fakeSource) {
	t.Helper()
	st, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)

	src := &fakeSource{st: st}
	m := NewMux(log.New(io.Discard))
	hub := NewRaceHub(log.New(io.Discard), m, src, nil, limiter)
	return m, hub, src
}

func TestRaceHubSnapshotOnSubscribe(t *testing.T) {
	m, _, src := newHub(t, nil)

	rec := &recorder{}
	sID := randomID(t)
	cID := m.Connect(sID, rec)
	require.NoError(t, m.Message(sID, cID, registerMessage(t, TopicStandings)))

	require.Len(t, rec.messages, 1)
	assert.Equal(t, TopicStandings, rec.messages[0].Type)

	var got Standings
	require.NoError(t, json.Unmarshal(rec.messages[0].Payload, &got))
	assert.Equal(t, src.st.TotalLaps, got.TotalLaps)
	assert.Len(t, got.Standings, len(src.st.Cars))
}

func TestRaceHubPublish(t *testing.T) {
	m, hub, src := newHub(t, nil)

	standings := &recorder{}
	sID := randomID(t)
	c1 := m.Connect(sID, standings)
	require.NoError(t, m.Message(sID, c1, registerMessage(t, TopicEvents)))

	everything := &recorder{}
	c2 := m.Connect(sID, everything)
	for _, typ := range []MessageType{TopicStandings, TopicEvents, TopicStrategy} {
		require.NoError(t, m.Message(sID, c2, registerMessage(t, typ)))
	}
	everything.messages = nil

	err := hub.Publish(context.Background(), engine.Update{State: src.st})
	require.NoError(t, err)
	assert.Empty(t, standings.types(), "no events means no events message")
	assert.Equal(t, []MessageType{TopicStandings, TopicStrategy}, everything.types())

	ev := race.NewEvent(1, epochForHub, race.EventFlag, "", "Lights out")
	err = hub.Publish(context.Background(), engine.Update{State: src.st, Events: []race.Event{ev}})
	require.NoError(t, err)
	assert.Equal(t, []MessageType{TopicEvents}, standings.types())

	var events []race.Event
	require.NoError(t, json.Unmarshal(standings.messages[0].Payload, &events))
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
}

func TestRaceHubDisruption(t *testing.T) {
	t.Run("Injects parsed events", func(t *testing.T) {
		m, _, src := newHub(t, nil)
		sID := randomID(t)
		cID := m.Connect(sID, io.Discard)

		msg := []byte(`{"type":"disruption","payload":{"event":"rain","intensity":"heavy"}}`)
		require.NoError(t, m.Message(sID, cID, msg))
		require.Len(t, src.injected, 1)
		assert.Equal(t, disruption.Rain, src.injected[0].Kind)
		assert.Equal(t, disruption.Heavy, src.injected[0].Intensity)
	})

	t.Run("Drops unknown kinds", func(t *testing.T) {
		m, _, src := newHub(t, nil)
		sID := randomID(t)
		cID := m.Connect(sID, io.Discard)

		msg := []byte(`{"type":"disruption","payload":{"event":"meteor"}}`)
		assert.NoError(t, m.Message(sID, cID, msg))
		assert.Empty(t, src.injected)
	})

	t.Run("Rejects malformed payloads", func(t *testing.T) {
		m, _, src := newHub(t, nil)
		sID := randomID(t)
		cID := m.Connect(sID, io.Discard)

		msg := []byte(`{"type":"disruption","payload":{"intensity":"heavy"}}`)
		assert.Error(t, m.Message(sID, cID, msg))
		assert.Empty(t, src.injected)
	})

	t.Run("Rate limited", func(t *testing.T) {
		_, hub, src := newHub(t, rate.NewLimiter(0, 1))

		_, ok, err := hub.Ingest([]byte("traffic"))
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = hub.Ingest([]byte("traffic"))
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.False(t, ok)
		assert.Len(t, src.injected, 1)
	})
}
