package game

import "time"

// gate opens at most once per period. A zero period opens on every tick.
type gate struct {
	period time.Duration
	next   time.Time
}

func newGate(period time.Duration, start time.Time) *gate {
	return &gate{period: period, next: start.Add(period)}
}

func (g *gate) open(now time.Time) bool {
	if g.period <= 0 {
		return true
	}
	if now.Before(g.next) {
		return false
	}
	g.next = now.Add(g.period)
	return true
}
