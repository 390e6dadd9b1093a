package engine

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/tifye/pitwall/assert"
)

// SkipToEnd is sent on the clock channel to run the race to the flag.
const SkipToEnd = math.MaxInt32

// Speeds are the playback speeds offered to the dashboard, in laps per
// signal.
var Speeds = []int{1, 2, 5, 10, 50}

// Clock drives the simulation. Every interval it sends the number of laps
// to advance.
type Clock struct {
	interval time.Duration
	speed    atomic.Int64
	paused   atomic.Bool
	c        chan int
}

func NewClock(interval time.Duration, lapsPerTick int) *Clock {
	assert.Assert(interval > 0, "clock interval must be positive")
	c := &Clock{
		interval: interval,
		c:        make(chan int, 1),
	}
	c.SetSpeed(lapsPerTick)
	return c
}

func (c *Clock) C() <-chan int {
	return c.c
}

func (c *Clock) SetSpeed(laps int) {
	c.speed.Store(int64(max(laps, 1)))
}

func (c *Clock) Speed() int {
	return int(c.speed.Load())
}

func (c *Clock) Pause(paused bool) {
	c.paused.Store(paused)
}

func (c *Clock) Paused() bool {
	return c.paused.Load()
}

// Skip asks the engine to run the rest of the race on the next signal.
func (c *Clock) Skip(ctx context.Context) {
	select {
	case c.c <- SkipToEnd:
	case <-ctx.Done():
	}
}

// Run emits signals until ctx is done. Signals not consumed before the
// next one are dropped so a slow consumer never builds a backlog.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.paused.Load() {
				continue
			}
			select {
			case c.c <- c.Speed():
			default:
			}
		}
	}
}
