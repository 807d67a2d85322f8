package core

import "sync/atomic"

// IDGenerator hands out monotonically increasing ids starting at 1. It is safe
// for concurrent use and never reuses a value.
type IDGenerator struct {
	last atomic.Int64
}

// Next returns the next unused id.
func (g *IDGenerator) Next() int64 {
	return g.last.Add(1)
}
