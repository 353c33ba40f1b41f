package synth

import (
	"math"
	"sort"
)

type rampKind int

const (
	rampNone rampKind = iota
	rampLinear
	rampExponential
)

// event is one automation point: the param reaches value at time t, either
// instantly (rampNone) or by ramping from the previous event.
type event struct {
	t     float64
	value float64
	kind  rampKind
}

// Param is an automatable value such as an oscillator's frequency or gain.
// Automation is expressed as timed events on the owning [Context]'s clock.
//
// Methods lock the owning context and are safe for concurrent use.
type Param struct {
	ctx          *Context
	defaultValue float64
	events       []event
}

func newParam(ctx *Context, v float64) *Param {
	return &Param{ctx: ctx, defaultValue: v}
}

// Value returns the param's value at the context's current time.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.timeLocked())
}

// SetValue sets the value immediately.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insertLocked(event{t: p.ctx.timeLocked(), value: v})
}

// SetValueAtTime schedules an instant change to v at time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insertLocked(event{t: t, value: v})
}

// LinearRampToValueAtTime ramps linearly from the previous event's value to v,
// arriving at time t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ramp(v, t, rampLinear)
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event's
// value to v, arriving at time t. Both endpoints must be non-zero and share
// a sign; otherwise the previous value is held until t.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.ramp(v, t, rampExponential)
}

// CancelScheduledValues removes all events at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].t >= t })
	p.events = p.events[:i]
}

func (p *Param) ramp(v, t float64, kind rampKind) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if len(p.events) == 0 {
		now := p.ctx.timeLocked()
		p.insertLocked(event{t: now, value: p.valueAt(now)})
	}
	p.insertLocked(event{t: t, value: v, kind: kind})
}

// insertLocked keeps events ordered by time. Events at equal times keep
// insertion order. Must be called with ctx.mu held.
func (p *Param) insertLocked(e event) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].t > e.t })
	p.events = append(p.events, event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

// valueAt evaluates the automation curve. Must be called with ctx.mu held.
func (p *Param) valueAt(t float64) float64 {
	// next: first event strictly after t.
	next := sort.Search(len(p.events), func(i int) bool { return p.events[i].t > t })

	prevValue, prevTime := p.defaultValue, 0.0
	if next > 0 {
		prev := p.events[next-1]
		prevValue, prevTime = prev.value, prev.t
	}
	if next == len(p.events) {
		return prevValue
	}

	e := p.events[next]
	span := e.t - prevTime
	if span <= 0 {
		return prevValue
	}
	frac := (t - prevTime) / span
	switch e.kind {
	case rampLinear:
		return prevValue + (e.value-prevValue)*frac
	case rampExponential:
		if prevValue == 0 || e.value == 0 || (prevValue > 0) != (e.value > 0) {
			return prevValue
		}
		return prevValue * math.Pow(e.value/prevValue, frac)
	default:
		return prevValue
	}
}

// compactLocked drops events that can no longer influence values at or after
// t, keeping the last one as the new baseline. Must be called with ctx.mu held.
func (p *Param) compactLocked(t float64) {
	next := sort.Search(len(p.events), func(i int) bool { return p.events[i].t > t })
	if next <= 1 {
		return
	}
	p.events = append(p.events[:0], p.events[next-1:]...)
}
