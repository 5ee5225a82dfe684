package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out trace ids that tie an order intent to the
// reports and fills it produces. Ids are monotonic within a run; a zero
// seed falls back to the wall clock so restarted runs do not collide.
type TraceGenerator struct {
	last atomic.Uint64
}

// NewTraceGenerator returns a generator starting above seed.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &TraceGenerator{}
	g.last.Store(seed)
	return g
}

// Next returns a fresh trace id.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Add(1)
}
