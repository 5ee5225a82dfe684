// Package obs holds the in-process observability primitives: counters,
// latency aggregates, and trace id generation. Everything is lock-free so
// the hot path never blocks on a metric.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType  = int(schema.EventRiskDecision)
	maxExecReason = int(schema.ExecReasonUserCanceled)
)

// Metrics collects event counters and latency aggregates. A nil *Metrics is
// a valid no-op sink, so components take it without guarding.
type Metrics struct {
	events      [maxEventType + 1]atomic.Uint64
	execReasons [maxExecReason + 1]atomic.Uint64
	queueDrops  atomic.Uint64
	queueClosed atomic.Uint64

	eventLatency     LatencyStats
	orderFlowLatency LatencyStats
	riskEvalLatency  LatencyStats
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts the event and, when both timestamps are set, records
// the event-to-receive latency.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	if i := int(header.Type); i >= 0 && i < len(m.events) {
		m.events[i].Add(1)
	}
	if header.TsEvent > 0 && header.TsRecv >= header.TsEvent {
		m.eventLatency.Observe(time.Duration(header.TsRecv - header.TsEvent))
	}
}

// IncExecReason counts a non-trivial execution report reason.
func (m *Metrics) IncExecReason(reason schema.ExecReason) {
	if m == nil {
		return
	}
	if i := int(reason); i >= 0 && i < len(m.execReasons) {
		m.execReasons[i].Add(1)
	}
}

// IncQueueDrop records an event lost to a full queue.
func (m *Metrics) IncQueueDrop() {
	if m != nil {
		m.queueDrops.Add(1)
	}
}

// IncQueueClosed records a publish attempt against a closed queue.
func (m *Metrics) IncQueueClosed() {
	if m != nil {
		m.queueClosed.Add(1)
	}
}

// ObserveOrderFlow records intent-to-report latency.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m != nil {
		m.orderFlowLatency.Observe(d)
	}
}

// ObserveRiskEval records one risk gate evaluation.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m != nil {
		m.riskEvalLatency.Observe(d)
	}
}

// Snapshot is a point-in-time copy of all counters. Count maps carry only
// nonzero entries.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	ExecReasonCounts map[schema.ExecReason]uint64
	QueueDrops       uint64
	QueueClosed      uint64
	EventLatency     LatencySnapshot
	OrderFlowLatency LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

// Snapshot copies the current metric values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	events := make(map[schema.EventType]uint64)
	for i := range m.events {
		if v := m.events[i].Load(); v > 0 {
			events[schema.EventType(i)] = v
		}
	}
	reasons := make(map[schema.ExecReason]uint64)
	for i := range m.execReasons {
		if v := m.execReasons[i].Load(); v > 0 {
			reasons[schema.ExecReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      events,
		ExecReasonCounts: reasons,
		QueueDrops:       m.queueDrops.Load(),
		QueueClosed:      m.queueClosed.Load(),
		EventLatency:     m.eventLatency.Snapshot(),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
	}
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records a duration sample. Negative samples are dropped.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	l.count.Add(1)
	l.sum.Add(nanos)
	casFloor(&l.min, nanos)
	casCeil(&l.max, nanos)
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load()),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}

// casFloor lowers v to sample unless a smaller nonzero value is present.
func casFloor(v *atomic.Uint64, sample uint64) {
	for {
		cur := v.Load()
		if cur != 0 && sample >= cur {
			return
		}
		if v.CompareAndSwap(cur, sample) {
			return
		}
	}
}

func casCeil(v *atomic.Uint64, sample uint64) {
	for {
		cur := v.Load()
		if sample <= cur {
			return
		}
		if v.CompareAndSwap(cur, sample) {
			return
		}
	}
}
