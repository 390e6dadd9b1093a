package main

import (
	"errors"
	"fmt"

	"github.com/tifye/pitwall/engine"
	"github.com/tifye/pitwall/race"
)

func checkInvariants(prev, next *race.State, events []race.Event) error {
	if prev.Finished() {
		if next != prev || len(events) > 0 {
			return errors.New("finished race changed")
		}
		return nil
	}

	if next.Lap <= prev.Lap || next.Lap > next.TotalLaps {
		return fmt.Errorf("lap went from %d to %d of %d", prev.Lap, next.Lap, next.TotalLaps)
	}
	if len(next.Cars) != len(prev.Cars) {
		return fmt.Errorf("car count changed from %d to %d", len(prev.Cars), len(next.Cars))
	}

	active := next.ActiveCars()
	for i, c := range active {
		if c.Position != i+1 {
			return fmt.Errorf("car %s at index %d has position %d", c.Code, i, c.Position)
		}
		if i > 0 && c.CumulativeTime < active[i-1].CumulativeTime {
			return fmt.Errorf("car %s ahead of %s on cumulative time", active[i-1].Code, c.Code)
		}
	}
	if len(active) > 0 && active[0].GapToLeader != 0 {
		return fmt.Errorf("leader %s has gap %v", active[0].Code, active[0].GapToLeader)
	}
	for _, c := range next.Cars[len(active):] {
		if c.Active() || c.GapToLeader != race.NoGap {
			return fmt.Errorf("car %s out of order after retirements", c.Code)
		}
	}

	for _, before := range prev.Cars {
		after, ok := next.Car(before.Code)
		if !ok {
			return fmt.Errorf("car %s disappeared", before.Code)
		}
		if !before.Active() && after.Active() {
			return fmt.Errorf("car %s came back from retirement", before.Code)
		}
		if after.Active() && after.CumulativeTime < before.CumulativeTime {
			return fmt.Errorf("car %s cumulative time went backwards", before.Code)
		}
		if after.PitCount < before.PitCount {
			return fmt.Errorf("car %s lost a pit stop", before.Code)
		}
	}

	if len(next.Events) > engine.DefaultHistoryLen {
		return fmt.Errorf("history holds %d events", len(next.Events))
	}
	seen := make(map[string]bool, len(next.Events))
	for _, ev := range next.Events {
		if seen[ev.ID] {
			return fmt.Errorf("duplicate event %s", ev.ID)
		}
		seen[ev.ID] = true
	}

	return nil
}
