package clock

import "errors"

var (
	ErrPastTimestamp = errors.New("clock cannot advance to a past timestamp")
	ErrEmptyName     = errors.New("timer name is empty")
	ErrNilCallback   = errors.New("timer callback is nil")
	ErrBadInterval   = errors.New("timer interval must be > 0")
)

// TimeEvent is delivered to a timer callback when the timer fires.
type TimeEvent struct {
	Name string
	Ts   int64
}

// TimerFunc handles a fired timer.
type TimerFunc func(TimeEvent)

// Clock is the process-wide time source. All timestamps are unix nanos.
//
// Components receive an explicit Clock handle so that backtests can inject
// a simulated clock and live runs a real one.
type Clock interface {
	// Now returns the current timestamp.
	Now() int64
	// SetTimer registers a one-shot timer firing at triggerTs. Registering
	// an existing name replaces the pending timer.
	SetTimer(name string, triggerTs int64, fn TimerFunc) error
	// SetInterval registers a repeating timer firing every interval nanos,
	// first at Now()+interval. Same-name replacement applies.
	SetInterval(name string, interval int64, fn TimerFunc) error
	// CancelTimer removes a pending timer. Unknown names are a no-op.
	CancelTimer(name string)
	// TimerNames returns the names of pending timers, sorted.
	TimerNames() []string
}

// timer is a pending registration shared by both clock variants.
type timer struct {
	name     string
	trigger  int64
	interval int64
	reg      uint64
	fn       TimerFunc
}
