// Package exec owns the order lifecycle: command routing through the risk
// gate, status transitions, and publication of execution events. The
// matching engine (simulation) and a live venue gateway are drop-in
// ExecutionClient implementations behind the same contract.
package exec

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
)

// ErrPendingTimeout is returned by a live ExecutionClient when the venue
// round-trip exceeded its deadline. It is not fatal: the order stays in its
// prior state and a pending-timeout execution event is published.
var ErrPendingTimeout = errors.New("venue round-trip timed out")

// ExecutionClient executes validated commands. The simulation matching
// engine and a live venue gateway implement the same contract.
type ExecutionClient interface {
	Submit(order schema.Order) error
	Cancel(intent schema.CancelIntent) error
	Modify(intent schema.ModifyIntent) error
}

// Outbox publishes execution events with sequenced headers onto the bus.
type Outbox struct {
	bus    *bus.Bus
	seq    *bus.Sequencer
	clk    clock.Clock
	source schema.SourceID
}

// NewOutbox creates an outbox stamping events with the given source id.
func NewOutbox(b *bus.Bus, seq *bus.Sequencer, clk clock.Clock, source schema.SourceID) *Outbox {
	return &Outbox{bus: b, seq: seq, clk: clk, source: source}
}

func (o *Outbox) header(t schema.EventType, traceID uint64) schema.EventHeader {
	now := o.clk.Now()
	h := schema.NewHeader(t, o.source, o.seq.Next(), now, now)
	h.TraceID = traceID
	return h
}

// PublishReport publishes an execution report.
func (o *Outbox) PublishReport(r schema.ExecutionReport, traceID uint64) {
	o.bus.Publish(schema.TopicExecReport(r.InstrumentID), bus.Message{
		Header:  o.header(schema.EventExecutionReport, traceID),
		Payload: r,
	})
}

// PublishFill publishes a fill event.
func (o *Outbox) PublishFill(f schema.Fill, traceID uint64) {
	o.bus.Publish(schema.TopicFill(f.InstrumentID), bus.Message{
		Header:  o.header(schema.EventFill, traceID),
		Payload: f,
	})
}

// PublishRiskDecision publishes the risk gate's verdict.
func (o *Outbox) PublishRiskDecision(d schema.RiskDecision, traceID uint64) {
	o.bus.Publish(schema.TopicRiskDecision, bus.Message{
		Header:  o.header(schema.EventRiskDecision, traceID),
		Payload: d,
	})
}

// Engine routes strategy commands: validate, transition, forward to the
// execution client. It registers the command endpoints on the bus.
type Engine struct {
	cache   *cache.Cache
	risk    atomic.Pointer[risk.Engine]
	sm      *StateMachine
	client  ExecutionClient
	outbox  *Outbox
	clk     clock.Clock
	metrics *obs.Metrics

	lastTrade map[schema.InstrumentID]schema.Price
}

// NewEngine creates the execution engine. Bind a client with SetClient and
// attach to a bus with Wire before sending commands.
func NewEngine(c *cache.Cache, riskEngine *risk.Engine, outbox *Outbox, clk clock.Clock) *Engine {
	e := &Engine{
		cache:     c,
		sm:        NewStateMachine(c),
		outbox:    outbox,
		clk:       clk,
		lastTrade: make(map[schema.InstrumentID]schema.Price),
	}
	e.risk.Store(riskEngine)
	return e
}

// SetClient binds the execution client.
func (e *Engine) SetClient(client ExecutionClient) {
	e.client = client
}

// StateMachine exposes the lifecycle state machine for the client side.
func (e *Engine) StateMachine() *StateMachine {
	return e.sm
}

// SetRisk swaps the risk engine. The holder is atomic: config hot-reload
// calls this from the watcher goroutine while the owner goroutine submits.
func (e *Engine) SetRisk(riskEngine *risk.Engine) {
	e.risk.Store(riskEngine)
}

// SetMetrics attaches latency instrumentation. Nil is fine.
func (e *Engine) SetMetrics(m *obs.Metrics) {
	e.metrics = m
}

// Wire registers the command endpoints and the trade subscription used for
// the price collar reference.
func (e *Engine) Wire(b *bus.Bus) error {
	if err := b.Register(schema.EndpointSubmitOrder, e.onSubmit); err != nil {
		return err
	}
	if err := b.Register(schema.EndpointCancelOrder, e.onCancel); err != nil {
		return err
	}
	if err := b.Register(schema.EndpointModifyOrder, e.onModify); err != nil {
		return err
	}
	_, err := b.Subscribe("data.trade.>", func(m bus.Message) {
		if trade, ok := m.Payload.(schema.Trade); ok {
			e.lastTrade[trade.InstrumentID] = trade.Price
		}
	})
	return err
}

func (e *Engine) onSubmit(m bus.Message) error {
	intent, ok := m.Payload.(schema.OrderIntent)
	if !ok {
		return fmt.Errorf("submit endpoint carried %T", m.Payload)
	}
	traceID := m.Header.TraceID
	now := e.clk.Now()

	order, err := e.sm.Create(intent, now)
	if err != nil {
		if errors.Is(err, cache.ErrDuplicateOrder) {
			e.outbox.PublishReport(schema.ExecutionReport{
				OrderID:      intent.OrderID,
				StrategyID:   intent.StrategyID,
				InstrumentID: intent.InstrumentID,
				Status:       schema.OrderStatusRejected,
				Reason:       schema.ExecReasonDuplicateOrder,
				LeavesQty:    intent.Qty,
			}, traceID)
			return nil
		}
		return err
	}

	inst, known := e.cache.Instrument(intent.InstrumentID)
	view := risk.View{
		Position:       e.cache.Position(intent.InstrumentID).Qty,
		LastTradePrice: e.lastTrade[intent.InstrumentID],
		Now:            now,
	}
	evalStart := time.Now()
	decision := e.risk.Load().Evaluate(intent, inst, known, view)
	e.metrics.ObserveRiskEval(time.Since(evalStart))
	e.outbox.PublishRiskDecision(decision, traceID)

	if decision.Action != schema.RiskActionAllow {
		rejected, terr := e.sm.Transition(order.ID, schema.OrderStatusRejected, now)
		if terr != nil {
			return terr
		}
		e.outbox.PublishReport(schema.ExecutionReport{
			OrderID:      rejected.ID,
			StrategyID:   rejected.StrategyID,
			InstrumentID: rejected.InstrumentID,
			Status:       rejected.Status,
			Reason:       decision.Reason,
			LeavesQty:    rejected.LeavesQty(),
		}, traceID)
		return nil
	}

	submitted, err := e.sm.Transition(order.ID, schema.OrderStatusSubmitted, now)
	if err != nil {
		return err
	}

	if err := e.client.Submit(submitted); err != nil {
		if errors.Is(err, ErrPendingTimeout) {
			e.publishPendingTimeout(submitted, traceID)
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) onCancel(m bus.Message) error {
	intent, ok := m.Payload.(schema.CancelIntent)
	if !ok {
		return fmt.Errorf("cancel endpoint carried %T", m.Payload)
	}
	if _, ok := e.cache.Order(intent.OrderID); !ok {
		e.outbox.PublishReport(schema.ExecutionReport{
			OrderID:      intent.OrderID,
			StrategyID:   intent.StrategyID,
			InstrumentID: intent.InstrumentID,
			Status:       schema.OrderStatusRejected,
			Reason:       schema.ExecReasonUnknownOrder,
		}, m.Header.TraceID)
		return nil
	}
	if err := e.client.Cancel(intent); err != nil {
		if errors.Is(err, ErrPendingTimeout) {
			if order, ok := e.cache.Order(intent.OrderID); ok {
				e.publishPendingTimeout(order, m.Header.TraceID)
			}
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) onModify(m bus.Message) error {
	intent, ok := m.Payload.(schema.ModifyIntent)
	if !ok {
		return fmt.Errorf("modify endpoint carried %T", m.Payload)
	}
	if _, ok := e.cache.Order(intent.OrderID); !ok {
		e.outbox.PublishReport(schema.ExecutionReport{
			OrderID:      intent.OrderID,
			StrategyID:   intent.StrategyID,
			InstrumentID: intent.InstrumentID,
			Status:       schema.OrderStatusRejected,
			Reason:       schema.ExecReasonUnknownOrder,
		}, m.Header.TraceID)
		return nil
	}
	if err := e.client.Modify(intent); err != nil {
		if errors.Is(err, ErrPendingTimeout) {
			if order, ok := e.cache.Order(intent.OrderID); ok {
				e.publishPendingTimeout(order, m.Header.TraceID)
			}
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) publishPendingTimeout(order schema.Order, traceID uint64) {
	e.outbox.PublishReport(schema.ExecutionReport{
		OrderID:      order.ID,
		StrategyID:   order.StrategyID,
		InstrumentID: order.InstrumentID,
		Status:       order.Status,
		Reason:       schema.ExecReasonVenueTimeout,
		FilledQty:    order.FilledQty,
		LeavesQty:    order.LeavesQty(),
	}, traceID)
}
