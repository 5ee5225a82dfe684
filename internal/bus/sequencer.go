package bus

import "sync/atomic"

// Sequencer hands out the process-wide strictly increasing sequence
// numbers stamped onto event headers at emission. A single instance is
// shared by the feed engine and the execution publisher so the combined
// output stream stays totally ordered.
type Sequencer struct {
	last uint64
}

// NewSequencer creates a sequencer starting after last.
func NewSequencer(last uint64) *Sequencer {
	return &Sequencer{last: last}
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.last, 1)
}

// Last returns the most recently issued sequence number.
func (s *Sequencer) Last() uint64 {
	return atomic.LoadUint64(&s.last)
}
