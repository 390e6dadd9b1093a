package disruption

import "sync/atomic"

// Latch hands disruptions from ingestion to the tick loop. It holds at
// most one pending event; a newer Put replaces an unconsumed one.
type Latch struct {
	pending  atomic.Pointer[Event]
	replaced atomic.Uint64
}

// Put stores ev as the pending event and reports whether an unconsumed
// event was replaced.
func (l *Latch) Put(ev Event) bool {
	old := l.pending.Swap(&ev)
	if old != nil {
		l.replaced.Add(1)
		return true
	}
	return false
}

func (l *Latch) Take() (Event, bool) {
	ev := l.pending.Swap(nil)
	if ev == nil {
		return Event{}, false
	}
	return *ev, true
}

// Replaced is the number of events overwritten before being taken.
func (l *Latch) Replaced() uint64 {
	return l.replaced.Load()
}
