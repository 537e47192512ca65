package canvas

import (
	"sync"
	"time"
)

// gate is a leading-edge throttle: the first call in a window passes,
// everything else in the same window is rejected. Rejected calls are
// dropped, never queued — the next allowed call carries whatever state
// exists then, so intermediate states are lost by design.
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newGate(interval time.Duration, now func() time.Time) *gate {
	if now == nil {
		now = time.Now
	}
	return &gate{interval: interval, now: now}
}

// allow reports whether the caller won this window and opens the next one.
func (g *gate) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.now()
	if !g.last.IsZero() && t.Sub(g.last) < g.interval {
		return false
	}
	g.last = t
	return true
}
