// Package synth is a small sample-accurate synthesis graph: oscillators with
// automatable frequency and gain, mixed into a single output that implements
// [beep.Streamer].
//
// The number of samples rendered so far is the graph's audio clock. Schedule
// sound against [Context.CurrentTime], never against wall time; the output
// driver (a speaker, a network pacer or an offline render) decides how fast
// that clock advances.
package synth

import (
	"errors"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/chordcoord/pkg/audio"
)

// ErrClosed is returned by operations on a closed [Context].
var ErrClosed = errors.New("synth: context closed")

// Option configures a [Context].
type Option func(*Context)

// WithMasterGain scales the mixed output. The default is 1.
func WithMasterGain(g float64) Option {
	return func(c *Context) {
		c.master = g
	}
}

// Context owns a set of voices and renders them.
//
// All methods are safe for concurrent use. OnEnded callbacks run on the
// goroutine that called [Context.Stream], after internal locks are released.
type Context struct {
	sampleRate beep.SampleRate
	master     float64

	mu     sync.Mutex
	frame  int64
	voices []*Oscillator
	closed bool
}

var (
	_ beep.Streamer = (*Context)(nil)
	_ audio.Clock   = (*Context)(nil)
)

// New creates a context rendering at sr.
func New(sr beep.SampleRate, opts ...Option) *Context {
	c := &Context{sampleRate: sr, master: 1}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SampleRate returns the output rate.
func (c *Context) SampleRate() beep.SampleRate { return c.sampleRate }

// CurrentTime implements [audio.Clock]: seconds of audio rendered so far.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLocked()
}

func (c *Context) timeLocked() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

// Voices returns the number of started, not yet ended oscillators.
func (c *Context) Voices() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voices)
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stream implements [beep.Streamer]. It mixes every active voice into
// samples and advances the clock. After Close it returns (0, false).
func (c *Context) Stream(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, false
	}

	rate := float64(c.sampleRate)
	for i := range samples {
		t := float64(c.frame+int64(i)) / rate
		var mix float64
		for _, v := range c.voices {
			mix += v.sampleLocked(t, rate)
		}
		mix = math.Max(-1, math.Min(1, mix*c.master))
		samples[i] = [2]float64{mix, mix}
	}
	c.frame += int64(len(samples))

	now := c.timeLocked()
	var ended []func()
	live := c.voices[:0]
	for _, v := range c.voices {
		if v.stop <= now {
			v.ended = true
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		v.freq.compactLocked(now)
		v.gain.compactLocked(now)
		live = append(live, v)
	}
	clear(c.voices[len(live):])
	c.voices = live
	c.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return len(samples), true
}

// Err implements [beep.Streamer].
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Render streams n samples and returns them as mono values. It is the
// offline driver used by tests and by network pacing.
func (c *Context) Render(n int) []float64 {
	buf := make([][2]float64, n)
	got, _ := c.Stream(buf)
	out := make([]float64, got)
	for i := range got {
		out[i] = buf[i][0]
	}
	return out
}

// Close silences the graph and releases all voices. It is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.voices = nil
	return nil
}

func (c *Context) addVoiceLocked(o *Oscillator) {
	c.voices = append(c.voices, o)
}
