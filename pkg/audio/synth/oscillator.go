package synth

import (
	"errors"
	"fmt"
	"math"
)

// ErrAlreadyStarted is returned by [Oscillator.Start] on a second call.
var ErrAlreadyStarted = errors.New("synth: oscillator already started")

// Waveform selects an oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

// String returns the lower-case waveform name.
func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// ParseWaveform maps a waveform name to its value.
func ParseWaveform(s string) (Waveform, error) {
	switch s {
	case "sine":
		return Sine, nil
	case "square":
		return Square, nil
	case "sawtooth":
		return Sawtooth, nil
	case "triangle":
		return Triangle, nil
	}
	return 0, fmt.Errorf("synth: unknown waveform %q", s)
}

// at evaluates the waveform at phase p in [0, 1).
func (w Waveform) at(p float64) float64 {
	switch w {
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*p - 1
	case Triangle:
		switch {
		case p < 0.25:
			return 4 * p
		case p < 0.75:
			return 2 - 4*p
		default:
			return 4*p - 4
		}
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

// Oscillator is a periodic source routed through its own gain stage into the
// context output. An oscillator plays once: after it stops it cannot be
// restarted.
type Oscillator struct {
	ctx  *Context
	wave Waveform
	freq *Param
	gain *Param

	phase   float64
	start   float64
	stop    float64
	started bool
	ended   bool
	onEnded func()
}

// NewOscillator creates an unstarted oscillator at freq Hz with unit gain.
func (c *Context) NewOscillator(w Waveform, freq float64) *Oscillator {
	o := &Oscillator{ctx: c, wave: w, stop: math.Inf(1)}
	o.freq = newParam(c, freq)
	o.gain = newParam(c, 1)
	return o
}

// Frequency returns the frequency param in Hz.
func (o *Oscillator) Frequency() *Param { return o.freq }

// Gain returns the gain param.
func (o *Oscillator) Gain() *Param { return o.gain }

// Waveform returns the oscillator's shape.
func (o *Oscillator) Waveform() Waveform { return o.wave }

// OnEnded registers fn to run once the oscillator has stopped producing sound.
func (o *Oscillator) OnEnded(fn func()) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	o.onEnded = fn
}

// Start begins playback at audio time at. Times in the past start
// immediately.
func (o *Oscillator) Start(at float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.ctx.closed {
		return ErrClosed
	}
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true
	o.start = at
	o.ctx.addVoiceLocked(o)
	return nil
}

// Stop schedules the end of playback at audio time at. Repeated calls keep
// the earliest stop time; stopping an ended oscillator is a no-op.
func (o *Oscillator) Stop(at float64) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.ended {
		return
	}
	o.stop = math.Min(o.stop, at)
}

// Ended reports whether the oscillator has finished.
func (o *Oscillator) Ended() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.ended
}

// sampleLocked renders one sample at time t. Must be called with ctx.mu held.
func (o *Oscillator) sampleLocked(t, rate float64) float64 {
	if t < o.start || t >= o.stop {
		return 0
	}
	v := o.wave.at(o.phase) * o.gain.valueAt(t)
	o.phase += o.freq.valueAt(t) / rate
	o.phase -= math.Floor(o.phase)
	return v
}
