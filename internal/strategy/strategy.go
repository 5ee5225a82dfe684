// Package strategy hosts user strategies on the single owner goroutine.
// Strategies observe bus events and queue order commands; the runner drains
// queued commands only after the current event dispatch completes, so a
// strategy never re-enters the matching path mid-event.
package strategy

import (
	"time"

	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/obs"
	"main/internal/schema"
)

// Strategy is the user-facing trading callback surface.
type Strategy interface {
	Name() string
	// OnStart runs before any event. Subscribe to topics here.
	OnStart(ctx *Context) error
	// OnEvent receives every message matching the strategy's subscriptions.
	OnEvent(ctx *Context, m bus.Message)
	// OnStop runs at shutdown, after the last event.
	OnStop(ctx *Context)
}

type pendingCommand struct {
	endpoint string
	msg      bus.Message
}

// Context is a strategy's handle onto the platform. It is bound to one
// strategy and is only valid on the owner goroutine.
type Context struct {
	id      uint32
	runner  *Runner
	pending []pendingCommand
}

// StrategyID returns the id the strategy was registered under.
func (c *Context) StrategyID() uint32 {
	return c.id
}

// Clock returns the process clock.
func (c *Context) Clock() clock.Clock {
	return c.runner.clk
}

// Cache returns the shared state cache. Strategies read it; only the
// execution path writes.
func (c *Context) Cache() *cache.Cache {
	return c.runner.cache
}

// Subscribe routes messages matching pattern to the strategy's OnEvent.
func (c *Context) Subscribe(pattern string) error {
	s := c.runner.strategyFor(c.id)
	_, err := c.runner.bus.Subscribe(pattern, func(m bus.Message) {
		s.OnEvent(c, m)
	})
	return err
}

// SubmitOrder queues an order for submission and returns its id. A zero
// OrderID is replaced with the next id from the shared allocator.
func (c *Context) SubmitOrder(intent schema.OrderIntent) uint64 {
	if intent.OrderID == 0 {
		c.runner.nextOrderID++
		intent.OrderID = c.runner.nextOrderID
	}
	intent.StrategyID = c.id
	c.queue(schema.EndpointSubmitOrder, schema.EventOrderIntent, intent)
	return intent.OrderID
}

// CancelOrder queues a cancel for one of this strategy's orders.
func (c *Context) CancelOrder(orderID uint64, instrumentID schema.InstrumentID) {
	c.queue(schema.EndpointCancelOrder, schema.EventCancelIntent, schema.CancelIntent{
		OrderID:      orderID,
		StrategyID:   c.id,
		InstrumentID: instrumentID,
	})
}

// ModifyOrder queues a price or quantity amendment.
func (c *Context) ModifyOrder(intent schema.ModifyIntent) {
	intent.StrategyID = c.id
	c.queue(schema.EndpointModifyOrder, schema.EventModifyIntent, intent)
}

func (c *Context) queue(endpoint string, t schema.EventType, payload any) {
	now := c.runner.clk.Now()
	h := schema.NewHeader(t, c.runner.source, c.runner.seq.Next(), now, now)
	h.TraceID = c.runner.trace.Next()
	c.pending = append(c.pending, pendingCommand{
		endpoint: endpoint,
		msg:      bus.Message{Header: h, Payload: payload},
	})
}

type entry struct {
	strategy Strategy
	ctx      *Context
}

// Runner registers strategies and drains their queued commands between
// event dispatches, in registration order.
type Runner struct {
	bus    *bus.Bus
	clk    clock.Clock
	cache  *cache.Cache
	seq    *bus.Sequencer
	trace  *obs.TraceGenerator
	source schema.SourceID

	entries     []entry
	nextOrderID uint64
	metrics     *obs.Metrics
}

// NewRunner creates a strategy runner stamping commands with the given
// source id.
func NewRunner(b *bus.Bus, clk clock.Clock, c *cache.Cache, seq *bus.Sequencer, trace *obs.TraceGenerator, source schema.SourceID) *Runner {
	return &Runner{bus: b, clk: clk, cache: c, seq: seq, trace: trace, source: source}
}

// SetMetrics attaches command drain instrumentation. Nil is fine.
func (r *Runner) SetMetrics(m *obs.Metrics) {
	r.metrics = m
}

// Add registers a strategy under the given id.
func (r *Runner) Add(id uint32, s Strategy) *Context {
	ctx := &Context{id: id, runner: r}
	r.entries = append(r.entries, entry{strategy: s, ctx: ctx})
	return ctx
}

func (r *Runner) strategyFor(id uint32) Strategy {
	for _, e := range r.entries {
		if e.ctx.id == id {
			return e.strategy
		}
	}
	return nil
}

// Start runs every strategy's OnStart, then drains any commands they
// queued during it.
func (r *Runner) Start() error {
	for _, e := range r.entries {
		if err := e.strategy.OnStart(e.ctx); err != nil {
			return err
		}
	}
	return r.Drain()
}

// Stop runs every strategy's OnStop. Commands queued during OnStop are
// discarded.
func (r *Runner) Stop() {
	for _, e := range r.entries {
		e.strategy.OnStop(e.ctx)
		e.ctx.pending = nil
	}
}

// Drain sends every queued command. Execution reports published while
// draining may queue further commands; the loop runs until no strategy has
// anything pending.
func (r *Runner) Drain() error {
	for {
		var batch []pendingCommand
		for i := range r.entries {
			ctx := r.entries[i].ctx
			batch = append(batch, ctx.pending...)
			ctx.pending = nil
		}
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		for _, cmd := range batch {
			if err := r.bus.Send(cmd.endpoint, cmd.msg); err != nil {
				return err
			}
		}
		r.metrics.ObserveOrderFlow(time.Since(start))
	}
}
