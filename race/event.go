package race

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventPit      EventKind = "pit"
	EventOvertake EventKind = "overtake"
	EventIncident EventKind = "incident"
	EventWeather  EventKind = "weather"
	EventFlag     EventKind = "flag"
)

// Event is a race log entry.
type Event struct {
	ID          string    `json:"id"`
	Lap         int       `json:"lap"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        EventKind `json:"kind"`
	Description string    `json:"description"`
	Car         string    `json:"car,omitempty"`
}

func NewEvent(lap int, at time.Time, kind EventKind, car, description string) Event {
	return Event{
		ID:          uuid.NewString(),
		Lap:         lap,
		Timestamp:   at,
		Kind:        kind,
		Description: description,
		Car:         car,
	}
}

// PrependEvents puts events, which are oldest first, on top of log, which
// is most-recent-first, and caps the result at limit entries.
func PrependEvents(log []Event, events []Event, limit int) []Event {
	out := make([]Event, 0, min(len(log)+len(events), max(limit, 0)))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	for i := 0; i < len(log) && len(out) < limit; i++ {
		out = append(out, log[i])
	}
	return out
}
