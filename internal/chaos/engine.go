// Package chaos injects faults into market data streams: drops, duplicates,
// bounded reordering, and receive-time delay. It stresses the feed merge,
// which must stay totally ordered on event time no matter how a source
// misbehaves.
package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"main/internal/bus"
)

// Config controls fault injection. Rates are probabilities in [0,1].
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	// ReorderWindow buffers this many messages and releases them in random
	// order. 1 disables reordering.
	ReorderWindow int
	// MaxDelay adds up to this much to TsRecv, simulating transport lag.
	MaxDelay time.Duration
}

// Validate checks the config ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// Engine applies the configured faults to a message stream. Same seed,
// same faults.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []bus.Message
}

// NewEngine creates a chaos engine. A zero seed picks the current time.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process applies faults to one message and returns what survives. A nil
// result means the message was dropped or buffered for reordering.
func (e *Engine) Process(m bus.Message) []bus.Message {
	if e == nil {
		return []bus.Message{m}
	}
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		return nil
	}
	m = e.applyDelay(m)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(m)
	}
	e.pending = append(e.pending, m)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Flush releases the reorder buffer, in random order.
func (e *Engine) Flush() []bus.Message {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]bus.Message, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		m := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(m)...)
	}
	return out
}

// WrapSource interposes the engine between a producer and its feed queue.
// The wrapped producer writes into a private queue; faults are applied as
// messages move to the real one.
func (e *Engine) WrapSource(run func(ctx context.Context, q *bus.Queue) error) func(ctx context.Context, q *bus.Queue) error {
	return func(ctx context.Context, q *bus.Queue) error {
		inner := bus.NewQueue(256)
		errCh := make(chan error, 1)
		go func() {
			errCh <- run(ctx, inner)
			inner.Close()
		}()

		inner.Run(ctx, func(m bus.Message) {
			for _, out := range e.Process(m) {
				if err := q.Publish(ctx, out); err != nil {
					return
				}
			}
		})
		for _, out := range e.Flush() {
			if err := q.Publish(ctx, out); err != nil {
				break
			}
		}
		return <-errCh
	}
}

func (e *Engine) applyDuplicate(m bus.Message) []bus.Message {
	out := []bus.Message{m}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, m)
	}
	return out
}

func (e *Engine) applyDelay(m bus.Message) bus.Message {
	if e.cfg.MaxDelay <= 0 {
		return m
	}
	delay := e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1)
	if delay == 0 {
		return m
	}
	if m.Header.TsRecv > 0 {
		m.Header.TsRecv += delay
	} else if m.Header.TsEvent > 0 {
		m.Header.TsRecv = m.Header.TsEvent + delay
	}
	return m
}
