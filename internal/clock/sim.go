package clock

import "sort"

// SimClock is a simulated clock with no autonomous advance. The driving
// loop moves it forward with AdvanceTo, which atomically updates Now and
// fires every timer due at or before the target timestamp.
//
// SimClock is not safe for concurrent use; in backtests everything runs on
// the single owner goroutine.
type SimClock struct {
	now    int64
	regSeq uint64
	timers map[string]*timer
}

// NewSimClock creates a simulated clock starting at startTs.
func NewSimClock(startTs int64) *SimClock {
	return &SimClock{
		now:    startTs,
		timers: make(map[string]*timer),
	}
}

// Now returns the current simulated timestamp.
func (c *SimClock) Now() int64 {
	return c.now
}

// SetTimer registers a one-shot timer. A trigger at or before Now fires on
// the next advance.
func (c *SimClock) SetTimer(name string, triggerTs int64, fn TimerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilCallback
	}
	c.regSeq++
	c.timers[name] = &timer{
		name:    name,
		trigger: triggerTs,
		reg:     c.regSeq,
		fn:      fn,
	}
	return nil
}

// SetInterval registers a repeating timer firing every interval nanos.
func (c *SimClock) SetInterval(name string, interval int64, fn TimerFunc) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilCallback
	}
	if interval <= 0 {
		return ErrBadInterval
	}
	c.regSeq++
	c.timers[name] = &timer{
		name:     name,
		trigger:  c.now + interval,
		interval: interval,
		reg:      c.regSeq,
		fn:       fn,
	}
	return nil
}

// CancelTimer removes a pending timer.
func (c *SimClock) CancelTimer(name string) {
	delete(c.timers, name)
}

// TimerNames returns the names of pending timers, sorted.
func (c *SimClock) TimerNames() []string {
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AdvanceTo moves the clock to ts and fires all timers with trigger <= ts
// in ascending trigger order, then registration order. Advancing to a
// timestamp earlier than Now is an error; equal timestamps are allowed so
// callers can re-deliver at the current instant.
func (c *SimClock) AdvanceTo(ts int64) error {
	if ts < c.now {
		return ErrPastTimestamp
	}
	for {
		due := c.collectDue(ts)
		if len(due) == 0 {
			break
		}
		for _, t := range due {
			// A callback may have canceled or replaced this timer.
			current, ok := c.timers[t.name]
			if !ok || current.reg != t.reg {
				continue
			}
			if current.interval > 0 {
				current.trigger += current.interval
			} else {
				delete(c.timers, t.name)
			}
			if t.trigger > c.now {
				c.now = t.trigger
			}
			t.fn(TimeEvent{Name: t.name, Ts: t.trigger})
		}
	}
	c.now = ts
	return nil
}

// collectDue snapshots due timers sorted by (trigger, registration order).
// Interval timers are collected one occurrence at a time; the reschedule in
// AdvanceTo makes the loop converge.
func (c *SimClock) collectDue(ts int64) []*timer {
	var due []*timer
	for _, t := range c.timers {
		if t.trigger <= ts {
			copied := *t
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].trigger != due[j].trigger {
			return due[i].trigger < due[j].trigger
		}
		return due[i].reg < due[j].reg
	})
	return due
}
