// Package eventloop provides the single-threaded host event loop that drives
// the pitch detector's per-frame cycle and the beat scheduler's look-ahead
// timer. All callbacks run sequentially on the goroutine that calls
// [Loop.Run] (or [Loop.AdvanceBy] in tests), so subsystems never observe
// concurrent callbacks from the loop itself.
//
// Timers are deliberately coarse: a callback may fire late by an arbitrary
// amount under load. Components that need sample-accurate timing schedule
// against the audio clock and only use the loop to wake up.
package eventloop

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by [Loop.Run] when another Run is active.
var ErrAlreadyRunning = errors.New("eventloop: already running")

// DefaultFrameInterval approximates one display refresh at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// TimerID identifies a pending callback. The zero value never refers to a
// live timer.
type TimerID uint64

// Option configures a [Loop] during construction.
type Option func(*Loop)

// WithClock replaces the loop's time source. Use a [*ManualClock] together
// with [Loop.AdvanceBy] for deterministic tests.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithFrameInterval sets the delay used by [Loop.RequestFrame].
func WithFrameInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.frameInterval = d
		}
	}
}

// Loop is a timer-driven callback executor.
//
// After, RequestFrame, Post and Cancel are safe for concurrent use. Callbacks
// themselves run one at a time.
type Loop struct {
	clock         Clock
	frameInterval time.Duration

	mu      sync.Mutex
	timers  timerHeap
	byID    map[TimerID]*timer
	seq     uint64
	nextID  TimerID
	running bool

	wake chan struct{} // signalled when the earliest deadline may have changed
}

// New creates an idle loop. Call [Loop.Run] to start dispatching.
func New(opts ...Option) *Loop {
	l := &Loop{
		frameInterval: DefaultFrameInterval,
		byID:          make(map[TimerID]*timer),
		wake:          make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(l)
	}
	if l.clock == nil {
		l.clock = NewRealClock()
	}
	heap.Init(&l.timers)
	return l
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock { return l.clock }

// After schedules fn to run once, no earlier than d from now. Negative
// durations are treated as zero.
func (l *Loop) After(d time.Duration, fn func()) TimerID {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	l.seq++
	l.nextID++
	t := &timer{
		id:       l.nextID,
		deadline: l.clock.Now() + d,
		seq:      l.seq,
		fn:       fn,
	}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	l.mu.Unlock()

	l.notify()
	return t.id
}

// RequestFrame schedules fn for the next display-refresh tick.
func (l *Loop) RequestFrame(fn func()) TimerID {
	return l.After(l.frameInterval, fn)
}

// Post runs fn on the loop as soon as possible, after callbacks already due.
func (l *Loop) Post(fn func()) TimerID {
	return l.After(0, fn)
}

// Cancel removes a pending callback. It reports whether the timer was still
// pending; cancelling a fired or unknown timer is a no-op.
func (l *Loop) Cancel(id TimerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[id]
	if !ok {
		return false
	}
	delete(l.byID, id)
	heap.Remove(&l.timers, t.index)
	return true
}

// Pending returns the number of scheduled callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.Len()
}

// Run dispatches callbacks until ctx is cancelled. Only one Run may be active
// at a time; a second concurrent call returns immediately with
// [ErrAlreadyRunning].
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	idle := time.NewTimer(time.Hour)
	defer idle.Stop()

	for {
		for l.runNext(l.clock.Now()) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		wait := time.Hour
		if next, ok := l.nextDeadline(); ok {
			wait = max(next-l.clock.Now(), 0)
		}
		idle.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			idle.Stop()
		case <-idle.C:
		}
	}
}

// AdvanceBy moves a [*ManualClock] forward by d, running every callback that
// becomes due in deadline order with the clock set to that callback's
// deadline. Callbacks scheduled during the advance run too if they fall
// inside the window. It returns the number of callbacks run.
//
// AdvanceBy panics if the loop was not built with a [*ManualClock].
func (l *Loop) AdvanceBy(d time.Duration) int {
	mc, ok := l.clock.(*ManualClock)
	if !ok {
		panic("eventloop: AdvanceBy requires a *ManualClock")
	}
	target := mc.Now() + d
	ran := 0
	for {
		next, ok := l.nextDeadline()
		if !ok || next > target {
			break
		}
		mc.Set(next)
		if l.runNext(next) {
			ran++
		}
	}
	mc.Set(target)
	return ran
}

// runNext pops and runs the earliest timer if it is due at now.
func (l *Loop) runNext(now time.Duration) bool {
	l.mu.Lock()
	if l.timers.Len() == 0 || l.timers[0].deadline > now {
		l.mu.Unlock()
		return false
	}
	t := heap.Pop(&l.timers).(*timer)
	delete(l.byID, t.id)
	l.mu.Unlock()

	t.fn()
	return true
}

func (l *Loop) nextDeadline() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timers.Len() == 0 {
		return 0, false
	}
	return l.timers[0].deadline, true
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
