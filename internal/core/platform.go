/*
Core assembles the trading platform and drives it.

# Module
  - in-memory bus: synchronous topic fan-out on one owner goroutine
  - feed engine: k-way watermark merge of per-source queues
  - order book manager: one price-time book per instrument
  - matching engine: simulated venue behind the execution client contract
  - execution engine: risk gate, order lifecycle, event publication
  - strategy runner: user callbacks with deferred command draining

# Drivers
 1. Backtest: a simulated clock advanced to each event's timestamp
 2. Live: wall clock, adapters producing into bounded queues
*/
package core

import (
	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/exec"
	"main/internal/feed"
	"main/internal/match"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// Reserved source ids for internally produced events. Feed sources are
// numbered from 1 in config order.
const (
	SourceExec     schema.SourceID = 65000
	SourceStrategy schema.SourceID = 65001
)

// Platform is the assembled single-goroutine trading core.
type Platform struct {
	Bus     *bus.Bus
	Clock   clock.Clock
	Cache   *cache.Cache
	Books   *book.Manager
	Feed    *feed.Engine
	Exec    *exec.Engine
	Match   *match.Engine
	Runner  *strategy.Runner
	Metrics *obs.Metrics
	Seq     *bus.Sequencer

	fatal *book.InvariantError
}

// Options parameterizes platform assembly.
type Options struct {
	Loaded   ops.Loaded
	Clock    clock.Clock
	BookType book.Type
	// StartSeq seeds the sequencer, for resuming after snapshot recovery.
	StartSeq uint64
}

// NewPlatform wires the core components together on one bus. Subscription
// order matters: the matching engine sees each delta before the book
// manager applies it, so resting strategy orders crossed by incoming
// levels fill instead of corrupting the ladder. Metrics observe everything.
func NewPlatform(opts Options) (*Platform, error) {
	b := bus.New()
	seq := bus.NewSequencer(opts.StartSeq)
	c := cache.New(opts.Loaded.Registry)
	books := book.NewManager(opts.BookType)
	metrics := obs.NewMetrics()
	trace := obs.NewTraceGenerator(1)

	p := &Platform{
		Bus:     b,
		Clock:   opts.Clock,
		Cache:   c,
		Books:   books,
		Feed:    feed.NewEngine(opts.Loaded.Feed, b, opts.Clock, seq),
		Metrics: metrics,
		Seq:     seq,
	}

	if _, err := b.Subscribe(">", func(m bus.Message) {
		metrics.ObserveEvent(m.Header)
		if r, ok := m.Payload.(schema.ExecutionReport); ok && r.Reason != schema.ExecReasonNone {
			metrics.IncExecReason(r.Reason)
		}
	}); err != nil {
		return nil, err
	}

	outbox := exec.NewOutbox(b, seq, opts.Clock, SourceExec)
	riskEngine := risk.NewEngine(opts.Loaded.Risk)
	execEngine := exec.NewEngine(c, riskEngine, outbox, opts.Clock)
	execEngine.SetMetrics(metrics)
	matchEngine := match.NewEngine(opts.Loaded.Match, books, c, execEngine.StateMachine(), outbox, opts.Clock)
	execEngine.SetClient(matchEngine)

	if err := matchEngine.Wire(b); err != nil {
		return nil, err
	}
	if err := books.SubscribeDeltas(b,
		func(err error) {
			logs.Warnf("book delta: %v", err)
		},
		func(ie *book.InvariantError) {
			p.fatal = ie
		},
	); err != nil {
		return nil, err
	}
	if err := execEngine.Wire(b); err != nil {
		return nil, err
	}
	p.Exec = execEngine
	p.Match = matchEngine

	p.Runner = strategy.NewRunner(b, opts.Clock, c, seq, trace, SourceStrategy)
	p.Runner.SetMetrics(metrics)
	return p, nil
}

// Fatal returns the book invariant violation that halted the run, if any.
func (p *Platform) Fatal() *book.InvariantError {
	return p.fatal
}
