package clock

import (
	"sort"
	"sync"
	"time"
)

// Dispatcher delivers fired timer events onto the owner context. Live runs
// pass a function that enqueues onto the engine's command queue so that
// timer callbacks never run concurrently with event handling.
type Dispatcher func(fn func())

// RealClock advances with wall time and fires timers asynchronously via
// time.AfterFunc, handing each callback to the configured dispatcher.
type RealClock struct {
	mu       sync.Mutex
	dispatch Dispatcher
	regSeq   uint64
	timers   map[string]*realTimer
}

type realTimer struct {
	timer
	handle *time.Timer
	ticker *time.Ticker
	stop   chan struct{}
}

// NewRealClock creates a wall clock. A nil dispatcher runs callbacks
// directly on the timer goroutine.
func NewRealClock(dispatch Dispatcher) *RealClock {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &RealClock{
		dispatch: dispatch,
		timers:   make(map[string]*realTimer),
	}
}

// Now returns the current wall time in unix nanos.
func (c *RealClock) Now() int64 {
	return time.Now().UTC().UnixNano()
}

// SetTimer registers a one-shot timer firing at triggerTs.
func (c *RealClock) SetTimer(name string, triggerTs int64, fn TimerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilCallback
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(name)

	c.regSeq++
	rt := &realTimer{
		timer: timer{name: name, trigger: triggerTs, reg: c.regSeq, fn: fn},
	}
	delay := time.Duration(triggerTs - c.Now())
	if delay < 0 {
		delay = 0
	}
	rt.handle = time.AfterFunc(delay, func() {
		c.fire(name, rt.reg, triggerTs, fn)
	})
	c.timers[name] = rt
	return nil
}

// SetInterval registers a repeating timer firing every interval nanos.
func (c *RealClock) SetInterval(name string, interval int64, fn TimerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilCallback
	}
	if interval <= 0 {
		return ErrBadInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(name)

	c.regSeq++
	rt := &realTimer{
		timer:  timer{name: name, interval: interval, reg: c.regSeq, fn: fn},
		ticker: time.NewTicker(time.Duration(interval)),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-rt.stop:
				return
			case tick := <-rt.ticker.C:
				ts := tick.UTC().UnixNano()
				c.dispatch(func() { fn(TimeEvent{Name: name, Ts: ts}) })
			}
		}
	}()
	c.timers[name] = rt
	return nil
}

// CancelTimer removes a pending timer.
func (c *RealClock) CancelTimer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(name)
}

// TimerNames returns the names of pending timers, sorted.
func (c *RealClock) TimerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *RealClock) cancelLocked(name string) {
	rt, ok := c.timers[name]
	if !ok {
		return
	}
	delete(c.timers, name)
	if rt.handle != nil {
		rt.handle.Stop()
	}
	if rt.ticker != nil {
		rt.ticker.Stop()
		close(rt.stop)
	}
}

// fire delivers a one-shot timer if it is still the current registration.
func (c *RealClock) fire(name string, reg uint64, ts int64, fn TimerFunc) {
	c.mu.Lock()
	rt, ok := c.timers[name]
	if !ok || rt.reg != reg {
		c.mu.Unlock()
		return
	}
	delete(c.timers, name)
	c.mu.Unlock()

	c.dispatch(func() { fn(TimeEvent{Name: name, Ts: ts}) })
}
