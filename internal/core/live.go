package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/book"
	"main/internal/clock"
	"main/internal/ops"
	"main/internal/schema"
)

// Live drives the platform with the wall clock. Adapters produce into their
// bounded queues from their own goroutines; everything downstream of the
// merge, including timer callbacks, runs on the Run goroutine.
type Live struct {
	Platform *Platform
	dispatch chan func()
	sources  []attachedSource
	nextID   schema.SourceID

	// PollInterval bounds how long a queued event waits for the merge.
	PollInterval time.Duration
}

// NewLive assembles a platform around the wall clock. startSeq seeds the
// sequencer, so a recovered session continues numbering where it left off.
func NewLive(loaded ops.Loaded, startSeq uint64) (*Live, error) {
	l := &Live{
		dispatch:     make(chan func(), 256),
		PollInterval: time.Millisecond,
	}
	rc := clock.NewRealClock(func(fn func()) {
		l.dispatch <- fn
	})
	p, err := NewPlatform(Options{
		Loaded:   loaded,
		Clock:    rc,
		BookType: book.L2,
		StartSeq: startSeq,
	})
	if err != nil {
		return nil, err
	}
	l.Platform = p
	return l, nil
}

// AddSource attaches a producer under the next source id.
func (l *Live) AddSource(name string, run SourceFunc) error {
	l.nextID++
	q, err := l.Platform.Feed.AttachSource(l.nextID, name)
	if err != nil {
		return err
	}
	l.sources = append(l.sources, attachedSource{
		id:    l.nextID,
		name:  name,
		run:   run,
		queue: q,
	})
	return nil
}

// Run starts the strategies and processes events until the context is
// canceled or every source finishes. Remaining queued events are drained on
// the way out.
func (l *Live) Run(ctx context.Context) error {
	if len(l.sources) == 0 {
		return fmt.Errorf("live run has no sources")
	}
	if err := l.Platform.Runner.Start(); err != nil {
		return err
	}

	errCh := make(chan error, len(l.sources))
	var wg sync.WaitGroup
	for _, src := range l.sources {
		wg.Add(1)
		go func(src attachedSource) {
			defer wg.Done()
			if err := src.run(ctx, src.queue); err != nil {
				errCh <- fmt.Errorf("source %s: %w", src.name, err)
			}
			src.queue.Close()
		}(src)
	}

	runErr := l.loop(ctx)
	l.Platform.Feed.Drain()
	l.Platform.Runner.Stop()
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

func (l *Live) loop(ctx context.Context) error {
	feed := l.Platform.Feed
	poll := time.NewTicker(l.PollInterval)
	defer poll.Stop()

	for {
		if ie := l.Platform.Fatal(); ie != nil {
			return fmt.Errorf("book invariant violated: %w", ie)
		}
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.dispatch:
			fn()
			if err := l.Platform.Runner.Drain(); err != nil {
				return err
			}
		case <-poll.C:
			for {
				m, ok := feed.Next()
				if !ok {
					break
				}
				feed.Publish(m)
				if err := l.Platform.Runner.Drain(); err != nil {
					return err
				}
			}
			if feed.Done() {
				logs.Infof("live: sources finished, %d events dropped", feed.Dropped())
				return nil
			}
		}
	}
}
