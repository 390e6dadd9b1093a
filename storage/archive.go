package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tifye/pitwall/assert"
	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
)

type lapRow struct {
	RaceID         string  `db:"race_id"`
	Lap            int     `db:"lap"`
	Car            string  `db:"car"`
	Position       int     `db:"position"`
	CumulativeTime float64 `db:"cumulative_time"`
	LapTime        float64 `db:"lap_time"`
	Compound       string  `db:"compound"`
	TyreAge        int     `db:"tyre_age"`
	PitCount       int     `db:"pit_count"`
	Status         string  `db:"status"`
}

type eventRow struct {
	ID          string    `db:"id"`
	RaceID      string    `db:"race_id"`
	Lap         int       `db:"lap"`
	Timestamp   time.Time `db:"ts"`
	Kind        string    `db:"kind"`
	Car         string    `db:"car"`
	Description string    `db:"description"`
}

type decisionRow struct {
	RaceID         string  `db:"race_id"`
	Lap            int     `db:"lap"`
	ShouldPit      bool    `db:"should_pit"`
	TargetCompound string  `db:"target_compound"`
	PitLap         int     `db:"pit_lap"`
	SecondPitLap   int     `db:"second_pit_lap"`
	Reason         string  `db:"reason"`
	ProjectedTotal float64 `db:"projected_total"`
}

const (
	insertRace = `INSERT INTO races (id, track, total_laps, started_at) VALUES (?, ?, ?, ?)`

	insertLap = `INSERT OR REPLACE INTO laps
		(race_id, lap, car, position, cumulative_time, lap_time, compound, tyre_age, pit_count, status)
		VALUES (:race_id, :lap, :car, :position, :cumulative_time, :lap_time, :compound, :tyre_age, :pit_count, :status)`

	insertEvent = `INSERT OR IGNORE INTO events (id, race_id, lap, ts, kind, car, description)
		VALUES (:id, :race_id, :lap, :ts, :kind, :car, :description)`

	insertDecision = `INSERT OR REPLACE INTO decisions
		(race_id, lap, should_pit, target_compound, pit_lap, second_pit_lap, reason, projected_total)
		VALUES (:race_id, :lap, :should_pit, :target_compound, :pit_lap, :second_pit_lap, :reason, :projected_total)`
)

// Archive writes every published lap to DuckDB for later analysis. The
// simulation never reads it back.
type Archive struct {
	logger *log.Logger
	db     DuckDB
	raceID string
}

func NewArchive(ctx context.Context, logger *log.Logger, db DuckDB, track race.Track) (*Archive, error) {
	assert.AssertNotNil(logger)
	assert.AssertNotNil(db)

	a := &Archive{
		logger: logger,
		db:     db,
		raceID: uuid.NewString(),
	}
	_, err := db.ExecContext(ctx, insertRace, a.raceID, track.Name, track.TotalLaps, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert race: %s", err)
	}
	return a, nil
}

func (a *Archive) RaceID() string {
	return a.raceID
}

// Publish implements engine.Publisher.
func (a *Archive) Publish(ctx context.Context, u engine.Update) (err error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %s", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, st := range u.LapStates() {
		if err = a.writeLap(ctx, tx, st); err != nil {
			return err
		}
	}

	for _, ev := range u.Events {
		_, err = tx.NamedExecContext(ctx, insertEvent, eventRow{
			ID:          ev.ID,
			RaceID:      a.raceID,
			Lap:         ev.Lap,
			Timestamp:   ev.Timestamp.UTC(),
			Kind:        string(ev.Kind),
			Car:         ev.Car,
			Description: ev.Description,
		})
		if err != nil {
			return fmt.Errorf("insert event: %s", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %s", err)
	}
	a.logger.Debug("archived lap", "lap", u.State.Lap, "laps", len(u.LapStates()), "events", len(u.Events))
	return nil
}

// writeLap writes the standings and the hero's decision for one lap.
func (a *Archive) writeLap(ctx context.Context, tx *sqlx.Tx, st *race.State) error {
	for _, c := range st.Cars {
		_, err := tx.NamedExecContext(ctx, insertLap, lapRow{
			RaceID:         a.raceID,
			Lap:            st.Lap,
			Car:            c.Code,
			Position:       c.Position,
			CumulativeTime: c.CumulativeTime,
			LapTime:        c.LastLapTime,
			Compound:       string(c.Compound),
			TyreAge:        c.TyreAge,
			PitCount:       c.PitCount,
			Status:         string(c.Status),
		})
		if err != nil {
			return fmt.Errorf("insert lap: %s", err)
		}
	}

	d := st.Decision
	_, err := tx.NamedExecContext(ctx, insertDecision, decisionRow{
		RaceID:         a.raceID,
		Lap:            st.Lap,
		ShouldPit:      d.ShouldPitNow,
		TargetCompound: string(d.TargetCompound),
		PitLap:         d.ProjectedPitLap,
		SecondPitLap:   d.SecondPitLap,
		Reason:         string(d.Reason),
		ProjectedTotal: d.ProjectedTotal,
	})
	if err != nil {
		return fmt.Errorf("insert decision: %s", err)
	}
	return nil
}
