// Package feed merges the per-source event streams produced by adapters
// into one globally time-ordered, sequenced stream and republishes it on
// the bus.
//
// Each source delivers an internally time-ordered stream into its own
// bounded queue. The merge emits the minimum-timestamp pending event once
// no other source can still produce something earlier, using per-source
// watermarks (timestamp of the last event received from that source). A
// silent source holds the merge only until the staleness bound expires.
package feed

import (
	"fmt"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/clock"
	"main/internal/schema"
)

// Config controls merge behavior.
type Config struct {
	// QueueCapacity bounds each per-source queue. Producers block when
	// full; dropping would break the merge's ordering invariant.
	QueueCapacity int
	// MaxSilence is the staleness bound in nanos: a source with no pending
	// data that has been silent longer stops holding the merge. Zero
	// disables the bound (every live source always holds).
	MaxSilence int64
	// Priorities break ties between events with equal timestamps from
	// different sources; lower runs first. Unlisted types get priority 100.
	Priorities map[schema.EventType]int
}

// DefaultPriorities orders market data ahead of order-flow events at equal
// timestamps: a strategy must observe the datum that caused an execution
// before the execution itself.
func DefaultPriorities() map[schema.EventType]int {
	return map[schema.EventType]int{
		schema.EventInstrumentDef:   0,
		schema.EventBookDelta:       1,
		schema.EventTrade:           2,
		schema.EventQuote:           3,
		schema.EventExecutionReport: 10,
		schema.EventFill:            11,
	}
}

const defaultPriority = 100

type source struct {
	id        schema.SourceID
	name      string
	queue     *bus.Queue
	pending   []bus.Message
	watermark int64
	lastRecv  int64
	stale     bool
	done      bool
}

// Engine is the data engine: it owns the per-source queues and the merge.
// All methods run on the single owner goroutine.
type Engine struct {
	cfg     Config
	bus     *bus.Bus
	clk     clock.Clock
	seq     *bus.Sequencer
	sources []*source
	lastTs  int64
	dropped uint64
}

// NewEngine creates a feed engine publishing onto b.
func NewEngine(cfg Config, b *bus.Bus, clk clock.Clock, seq *bus.Sequencer) *Engine {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.Priorities == nil {
		cfg.Priorities = DefaultPriorities()
	}
	return &Engine{cfg: cfg, bus: b, clk: clk, seq: seq}
}

// AttachSource registers a named source and returns the bounded queue its
// adapter produces into.
func (e *Engine) AttachSource(id schema.SourceID, name string) (*bus.Queue, error) {
	for _, s := range e.sources {
		if s.id == id {
			return nil, fmt.Errorf("source already attached: %d (%s)", id, s.name)
		}
	}
	s := &source{
		id:    id,
		name:  name,
		queue: bus.NewQueue(e.cfg.QueueCapacity),
		// The staleness bound counts from attach until the first event.
		lastRecv: e.clk.Now(),
	}
	e.sources = append(e.sources, s)
	return s.queue, nil
}

// SourceDone marks a source as finished: it no longer holds the merge and
// its remaining queued events are drained normally.
func (e *Engine) SourceDone(id schema.SourceID) {
	for _, s := range e.sources {
		if s.id == id {
			s.done = true
			return
		}
	}
}

// Done reports whether every source has finished and nothing is pending.
func (e *Engine) Done() bool {
	e.pump()
	for _, s := range e.sources {
		if !s.done || len(s.pending) > 0 {
			return false
		}
	}
	return true
}

// Dropped returns the count of malformed upstream events discarded.
func (e *Engine) Dropped() uint64 {
	return e.dropped
}

// pump moves queued events into per-source pending buffers, updating
// watermarks and dropping events that violate the source's own ordering.
func (e *Engine) pump() {
	now := e.clk.Now()
	for _, s := range e.sources {
		for {
			m, ok := s.queue.TryPop()
			if !ok {
				break
			}
			if m.Header.TsEvent < s.watermark {
				// The source promised an internally ordered stream.
				e.dropped++
				logs.Warnf("feed: dropping out-of-order event from source %s: ts=%d watermark=%d",
					s.name, m.Header.TsEvent, s.watermark)
				continue
			}
			s.watermark = m.Header.TsEvent
			s.lastRecv = now
			s.stale = false
			s.pending = append(s.pending, m)
		}
		if s.queue.Closed() && len(s.pending) == 0 && s.queue.Len() == 0 {
			s.done = true
		}
	}
}

// Next returns the next globally ordered event with its sequence number
// assigned, or false when no event is currently safe to emit.
func (e *Engine) Next() (bus.Message, bool) {
	e.pump()

	best := -1
	for i, s := range e.sources {
		if len(s.pending) == 0 {
			continue
		}
		if best < 0 || e.before(s, e.sources[best]) {
			best = i
		}
	}
	if best < 0 {
		return bus.Message{}, false
	}

	candidate := e.sources[best]
	ts := candidate.pending[0].Header.TsEvent
	if !e.safeToEmit(candidate, ts) {
		return bus.Message{}, false
	}

	m := candidate.pending[0]
	candidate.pending = candidate.pending[1:]

	if m.Header.TsEvent < e.lastTs {
		// Cross-source ordering was violated despite the watermarks; the
		// offending event is dropped, the stream continues.
		e.dropped++
		logs.Warnf("feed: dropping late event from source %s: ts=%d last_emitted=%d",
			candidate.name, m.Header.TsEvent, e.lastTs)
		return e.Next()
	}

	e.lastTs = m.Header.TsEvent
	m.Header.Seq = e.seq.Next()
	if m.Header.TsRecv == 0 {
		m.Header.TsRecv = e.clk.Now()
	}
	return m, true
}

// before orders two sources' head events: timestamp, then configured
// per-type priority, then source id.
func (e *Engine) before(a, b *source) bool {
	ha, hb := a.pending[0].Header, b.pending[0].Header
	if ha.TsEvent != hb.TsEvent {
		return ha.TsEvent < hb.TsEvent
	}
	pa, pb := e.priority(ha.Type), e.priority(hb.Type)
	if pa != pb {
		return pa < pb
	}
	return a.id < b.id
}

func (e *Engine) priority(t schema.EventType) int {
	if p, ok := e.cfg.Priorities[t]; ok {
		return p
	}
	return defaultPriority
}

// safeToEmit reports whether no other source can still produce an event
// earlier than ts. A source with pending data cannot (its head already is
// its earliest). An empty source holds the merge while its watermark is
// behind ts, unless it is done or went stale. A source that has never
// produced holds too: its first event may carry any timestamp.
func (e *Engine) safeToEmit(candidate *source, ts int64) bool {
	now := e.clk.Now()
	for _, s := range e.sources {
		if s == candidate || s.done || len(s.pending) > 0 {
			continue
		}
		if s.watermark >= ts {
			continue
		}
		if e.cfg.MaxSilence > 0 && now-s.lastRecv > e.cfg.MaxSilence {
			if !s.stale {
				s.stale = true
				logs.Warnf("feed: source %s silent for %dns, no longer holding the merge",
					s.name, now-s.lastRecv)
			}
			continue
		}
		return false
	}
	return true
}

// Publish republishes a sequenced event on its bus topic.
func (e *Engine) Publish(m bus.Message) {
	e.bus.Publish(schema.TopicForEvent(m.Header.Type, PayloadInstrument(m.Payload)), m)
}

// Drain emits and publishes everything still safe, for shutdown. Sources
// are treated as done, so nothing holds the merge.
func (e *Engine) Drain() int {
	for _, s := range e.sources {
		s.done = true
	}
	n := 0
	for {
		m, ok := e.Next()
		if !ok {
			return n
		}
		e.Publish(m)
		n++
	}
}

// PayloadInstrument extracts the instrument id from a payload, or zero.
func PayloadInstrument(payload any) schema.InstrumentID {
	switch p := payload.(type) {
	case schema.Trade:
		return p.InstrumentID
	case schema.Quote:
		return p.InstrumentID
	case schema.BookDelta:
		return p.InstrumentID
	case schema.InstrumentDef:
		return p.ID
	case schema.ExecutionReport:
		return p.InstrumentID
	case schema.Fill:
		return p.InstrumentID
	case schema.RiskDecision:
		return p.InstrumentID
	case schema.OrderIntent:
		return p.InstrumentID
	case schema.CancelIntent:
		return p.InstrumentID
	case schema.ModifyIntent:
		return p.InstrumentID
	default:
		return 0
	}
}
