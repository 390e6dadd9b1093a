package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
)

func TestArchivePublish(t *testing.T) {
	db, err := InitDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)

	ctx := context.Background()
	archive, err := NewArchive(ctx, log.New(io.Discard), db, st.Track)
	require.NoError(t, err)

	stepper := engine.NewStepper(log.New(io.Discard), st.Track, 3, 4)
	for range 3 {
		next, events := stepper.Advance(st, 1, nil)
		require.NoError(t, archive.Publish(ctx, engine.Update{State: next, Events: events}))
		st = next
	}

	var laps int
	require.NoError(t, db.Get(&laps, `SELECT count(*) FROM laps WHERE race_id = ?`, archive.RaceID()))
	assert.Equal(t, 3*len(st.Cars), laps)

	var decisions int
	require.NoError(t, db.Get(&decisions, `SELECT count(*) FROM decisions WHERE race_id = ?`, archive.RaceID()))
	assert.Equal(t, 3, decisions)

	var events int
	require.NoError(t, db.Get(&events, `SELECT count(*) FROM events WHERE race_id = ?`, archive.RaceID()))
	assert.GreaterOrEqual(t, events, 1, "race start is archived")

	// republishing the same lap replaces rows
	require.NoError(t, archive.Publish(ctx, engine.Update{State: st, Events: st.Events}))
	require.NoError(t, db.Get(&laps, `SELECT count(*) FROM laps WHERE race_id = ?`, archive.RaceID()))
	assert.Equal(t, 3*len(st.Cars), laps)

	var leader string
	require.NoError(t, db.Get(&leader, `SELECT car FROM laps WHERE race_id = ? AND lap = 3 AND position = 1`, archive.RaceID()))
	want, _ := st.Leader()
	assert.Equal(t, want.Code, leader)
}

func TestArchiveFastForward(t *testing.T) {
	db, err := InitDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := race.NewState(race.DefaultRoster())
	require.NoError(t, err)

	ctx := context.Background()
	archive, err := NewArchive(ctx, log.New(io.Discard), db, st.Track)
	require.NoError(t, err)

	stepper := engine.NewStepper(log.New(io.Discard), st.Track, 5, 6)
	states, events := stepper.Walk(st, 5, nil)
	require.Len(t, states, 5)
	u := engine.Update{State: states[len(states)-1], Events: events, Laps: states}
	require.NoError(t, archive.Publish(ctx, u))

	var lapNumbers []int
	require.NoError(t, db.Select(&lapNumbers, `SELECT DISTINCT lap FROM laps WHERE race_id = ? ORDER BY lap`, archive.RaceID()))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, lapNumbers)

	var decisions int
	require.NoError(t, db.Get(&decisions, `SELECT count(*) FROM decisions WHERE race_id = ?`, archive.RaceID()))
	assert.Equal(t, 5, decisions)

	var eventLaps int
	require.NoError(t, db.Get(&eventLaps, `SELECT count(*) FROM events WHERE race_id = ? AND lap NOT IN (SELECT lap FROM laps WHERE race_id = ?)`, archive.RaceID(), archive.RaceID()))
	assert.Zero(t, eventLaps, "every archived event has its lap")
}

func TestArchiveSeparatesRaces(t *testing.T) {
	db, err := InitDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	track := race.Track{Name: "Monza", TotalLaps: 53}
	a, err := NewArchive(context.Background(), log.New(io.Discard), db, track)
	require.NoError(t, err)
	b, err := NewArchive(context.Background(), log.New(io.Discard), db, track)
	require.NoError(t, err)
	assert.NotEqual(t, a.RaceID(), b.RaceID())

	var started time.Time
	require.NoError(t, db.Get(&started, `SELECT started_at FROM races WHERE id = ?`, a.RaceID()))
	assert.False(t, started.IsZero())
}
