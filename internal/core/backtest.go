package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/bus"
	"main/internal/clock"
	"main/internal/ops"
	"main/internal/schema"
)

// SourceFunc produces an internally time-ordered event stream into a feed
// queue and returns when exhausted. The driver closes the queue.
type SourceFunc func(ctx context.Context, q *bus.Queue) error

type attachedSource struct {
	id    schema.SourceID
	name  string
	run   SourceFunc
	queue *bus.Queue
}

// Backtest drives the platform with a simulated clock: each emitted event
// advances the clock to its timestamp before dispatch, so timer callbacks
// and event handling interleave exactly as their timestamps dictate. The
// same sources and seed always produce the same event sequence.
type Backtest struct {
	Platform *Platform
	sim      *clock.SimClock
	sources  []attachedSource
	nextID   schema.SourceID
}

// NewBacktest assembles a platform around a simulated clock starting at
// startTs.
func NewBacktest(loaded ops.Loaded, startTs int64) (*Backtest, error) {
	sim := clock.NewSimClock(startTs)
	p, err := NewPlatform(Options{
		Loaded:   loaded,
		Clock:    sim,
		BookType: book.L2,
	})
	if err != nil {
		return nil, err
	}
	return &Backtest{Platform: p, sim: sim}, nil
}

// SimClock exposes the simulated clock, for tests and scenario drivers.
func (bt *Backtest) SimClock() *clock.SimClock {
	return bt.sim
}

// AddSource attaches a producer under the next source id.
func (bt *Backtest) AddSource(name string, run SourceFunc) error {
	bt.nextID++
	q, err := bt.Platform.Feed.AttachSource(bt.nextID, name)
	if err != nil {
		return err
	}
	bt.sources = append(bt.sources, attachedSource{
		id:    bt.nextID,
		name:  name,
		run:   run,
		queue: q,
	})
	return nil
}

// Run starts the strategies, streams every source to exhaustion through the
// merge, and stops. It returns the first producer or dispatch error.
func (bt *Backtest) Run(ctx context.Context) error {
	if len(bt.sources) == 0 {
		return fmt.Errorf("backtest has no sources")
	}
	if err := bt.Platform.Runner.Start(); err != nil {
		return err
	}

	errCh := make(chan error, len(bt.sources))
	var wg sync.WaitGroup
	for _, src := range bt.sources {
		wg.Add(1)
		go func(src attachedSource) {
			defer wg.Done()
			if err := src.run(ctx, src.queue); err != nil {
				errCh <- fmt.Errorf("source %s: %w", src.name, err)
			}
			src.queue.Close()
		}(src)
	}

	runErr := bt.loop(ctx)
	bt.Platform.Runner.Stop()
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (bt *Backtest) loop(ctx context.Context) error {
	feed := bt.Platform.Feed
	for {
		if ie := bt.Platform.Fatal(); ie != nil {
			return fmt.Errorf("book invariant violated: %w", ie)
		}
		m, ok := feed.Next()
		if !ok {
			if feed.Done() {
				logs.Infof("backtest: sources exhausted, %d events dropped", feed.Dropped())
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Microsecond):
			}
			continue
		}
		if err := bt.sim.AdvanceTo(m.Header.TsEvent); err != nil {
			return fmt.Errorf("advance to %d: %w", m.Header.TsEvent, err)
		}
		feed.Publish(m)
		if err := bt.Platform.Runner.Drain(); err != nil {
			return err
		}
	}
}
