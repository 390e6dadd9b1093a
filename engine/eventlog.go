package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/tifye/pitwall/disruption"
	"github.com/tifye/pitwall/race"
)

// Diff compares two consecutive standings and returns the race events
// between them, oldest first. Position changes caused only by
// retirements are not overtakes.
func Diff(prev, next *race.State, at time.Time) []race.Event {
	lap := next.Lap
	var events []race.Event

	if lap == 1 && prev.Lap == 0 {
		events = append(events, race.NewEvent(lap, at, race.EventFlag, "", fmt.Sprintf("Lights out at %s", trackName(next))))
	}

	before := make(map[string]race.Car, len(prev.Cars))
	for _, c := range prev.Cars {
		before[c.Code] = c
	}

	for _, c := range next.Cars {
		p, ok := before[c.Code]
		if ok && p.Active() && !c.Active() {
			events = append(events, race.NewEvent(lap, at, race.EventIncident, c.Code, fmt.Sprintf("%s out of the race, DNF", c.Code)))
		}
	}

	for _, c := range next.Cars {
		p, ok := before[c.Code]
		if ok && c.PitCount > p.PitCount {
			events = append(events, race.NewEvent(lap, at, race.EventPit, c.Code, fmt.Sprintf("%s boxes, %s fitted, stop %d", c.Code, c.Compound, c.PitCount)))
		}
	}

	prevRank := survivorRanks(prev, next)
	nextRank := survivorRanks(next, prev)
	for _, c := range next.Cars {
		if !c.Active() {
			continue
		}
		p, ok := before[c.Code]
		if !ok || !p.Active() || c.Position >= p.Position {
			continue
		}
		if nextRank[c.Code] >= prevRank[c.Code] {
			continue
		}

		events = append(events, race.NewEvent(lap, at, race.EventOvertake, c.Code, gainDescription(next, c)))
	}

	if next.Finished() && !prev.Finished() {
		desc := "Chequered flag"
		if winner, ok := next.Leader(); ok {
			desc = fmt.Sprintf("Chequered flag, %s wins", winner.Code)
		}
		events = append(events, race.NewEvent(lap, at, race.EventFlag, "", desc))
	}

	return events
}

// gainDescription names the car passed on track. Under a caution nobody
// passes, so places gained there come from stops or incidents ahead.
func gainDescription(next *race.State, c race.Car) string {
	switch next.Conditions.Track {
	case race.SafetyCar:
		return fmt.Sprintf("%s gains P%d under the safety car", c.Code, c.Position)
	case race.VirtualSafetyCar:
		return fmt.Sprintf("%s gains P%d under the VSC", c.Code, c.Position)
	}
	if passed, ok := next.CarAt(c.Position + 1); ok {
		return fmt.Sprintf("%s overtakes %s for P%d", c.Code, passed.Code, c.Position)
	}
	return fmt.Sprintf("%s moves up to P%d", c.Code, c.Position)
}

// survivorRanks ranks the cars of s that are active in both s and other.
func survivorRanks(s, other *race.State) map[string]int {
	alive := make(map[string]bool, len(other.Cars))
	for _, c := range other.Cars {
		alive[c.Code] = c.Active()
	}

	ranks := make(map[string]int, len(s.Cars))
	rank := 0
	for _, c := range s.Cars {
		if !c.Active() || !alive[c.Code] {
			continue
		}
		rank++
		ranks[c.Code] = rank
	}
	return ranks
}

func trackName(s *race.State) string {
	if s.Track.Name == "" {
		return "the circuit"
	}
	return s.Track.Name
}

// Announcer turns the active disruption into a single weather or flag
// event the first time each disruption id is seen.
type Announcer struct {
	last string
}

func (a *Announcer) Announce(ev *disruption.Event, lap int, at time.Time) (race.Event, bool) {
	if ev == nil || ev.ID == a.last {
		return race.Event{}, false
	}
	a.last = ev.ID

	kind := race.EventFlag
	if ev.Kind.Weather() {
		kind = race.EventWeather
	}
	return race.NewEvent(lap, at, kind, "", announcement(ev)), true
}

func announcement(ev *disruption.Event) string {
	switch ev.Kind {
	case disruption.Rain:
		if ev.Intensity == disruption.Heavy {
			return "Heavy rain, full wets required"
		}
		return "Rain falling, track is wet"
	case disruption.Heatwave:
		return "Track temperature soaring, degradation up"
	case disruption.TyreDegSpike:
		return "Tyre degradation spike across the field"
	case disruption.Traffic:
		return "DRS train forming in the midfield"
	case disruption.MinorCrash:
		return "Virtual safety car deployed"
	case disruption.MajorCrash:
		return "Safety car deployed"
	case disruption.TyreFailure:
		return "Debris on track, tyre failure reported"
	case disruption.Penalty:
		return "Stewards investigating an incident"
	}
	return strings.ReplaceAll(string(ev.Kind), "_", " ")
}
