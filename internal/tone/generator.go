// Package tone plays reference tones and strummed chords through a
// [synth.Context]. Sustained tones toggle like the buttons of a reference
// tuner; timed tones and strums end on their own.
package tone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/chordcoord/pkg/audio/synth"
)

// Envelope constants.
const (
	Attack       = 50 * time.Millisecond
	ToneGain     = 0.3
	StrumGain    = 0.2
	ReleaseGain  = 0.01
	StrumDelay   = 50 * time.Millisecond
	StrumLength  = 1500 * time.Millisecond
	ToneWaveform = synth.Sawtooth
)

// ContextFactory returns the synthesis context to play on. It is called
// lazily on first use and again after Close.
type ContextFactory func(ctx context.Context) (*synth.Context, error)

// Generator manages the tones currently sounding. It is safe for concurrent
// use.
type Generator struct {
	factory ContextFactory

	mu        sync.Mutex
	ctx       *synth.Context
	active    map[float64]*synth.Oscillator
	currentHz float64
	hasHz     bool
}

// New returns a generator that acquires its context from factory.
func New(factory ContextFactory) *Generator {
	return &Generator{
		factory: factory,
		active:  make(map[float64]*synth.Oscillator),
	}
}

// PlayTone plays a sawtooth at hz.
//
// A zero duration toggles a sustained tone: if hz is already sounding it is
// stopped, otherwise every other tone is stopped first and hz sustains until
// StopTone or StopAll. A positive duration plays a tone that decays and
// stops by itself.
func (g *Generator) PlayTone(ctx context.Context, hz float64, duration time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if duration <= 0 {
		if _, ok := g.active[hz]; ok {
			g.stopLocked(hz)
			return nil
		}
		g.stopAllLocked()
	}

	sc, err := g.contextLocked(ctx)
	if err != nil {
		return err
	}

	now := sc.CurrentTime()
	osc := sc.NewOscillator(ToneWaveform, hz)
	osc.Frequency().SetValueAtTime(hz, now)
	gain := osc.Gain()
	gain.SetValueAtTime(0, now)
	gain.LinearRampToValueAtTime(ToneGain, now+Attack.Seconds())

	if duration > 0 {
		end := now + duration.Seconds()
		gain.ExponentialRampToValueAtTime(ReleaseGain, end)
		osc.Stop(end)
		osc.OnEnded(func() { g.ended(hz, osc) })
	}

	if err := osc.Start(now); err != nil {
		return fmt.Errorf("tone: play %.2f Hz: %w", hz, err)
	}
	g.active[hz] = osc
	g.currentHz, g.hasHz = hz, true
	return nil
}

// StopTone silences the tone at hz, if any.
func (g *Generator) StopTone(hz float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked(hz)
}

// StopAll silences every tone started by PlayTone.
func (g *Generator) StopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopAllLocked()
}

// Strum plays freqs as a quick downstroke, one string every [StrumDelay].
// Strummed notes are not tracked; they always ring for [StrumLength].
func (g *Generator) Strum(ctx context.Context, freqs []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	sc, err := g.contextLocked(ctx)
	if err != nil {
		return err
	}

	now := sc.CurrentTime()
	for i, hz := range freqs {
		start := now + float64(i)*StrumDelay.Seconds()
		end := start + StrumLength.Seconds()

		osc := sc.NewOscillator(ToneWaveform, hz)
		osc.Frequency().SetValueAtTime(hz, start)
		gain := osc.Gain()
		gain.SetValueAtTime(0, start)
		gain.LinearRampToValueAtTime(StrumGain, start+Attack.Seconds())
		gain.ExponentialRampToValueAtTime(ReleaseGain, end)
		if err := osc.Start(start); err != nil {
			return fmt.Errorf("tone: strum: %w", err)
		}
		osc.Stop(end)
	}
	return nil
}

// Playing reports whether any tracked tone is sounding.
func (g *Generator) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active) > 0
}

// CurrentHz returns the most recently started tone while any tone plays.
func (g *Generator) CurrentHz() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentHz, g.hasHz
}

// Close stops everything and closes the context. A later PlayTone or Strum
// acquires a new one.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopAllLocked()
	if g.ctx == nil {
		return nil
	}
	err := g.ctx.Close()
	g.ctx = nil
	return err
}

func (g *Generator) contextLocked(ctx context.Context) (*synth.Context, error) {
	if g.ctx != nil && !g.ctx.Closed() {
		return g.ctx, nil
	}
	sc, err := g.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("tone: open output: %w", err)
	}
	g.ctx = sc
	return sc, nil
}

func (g *Generator) stopLocked(hz float64) {
	osc, ok := g.active[hz]
	if !ok {
		return
	}
	osc.Stop(g.ctx.CurrentTime())
	delete(g.active, hz)
	g.refreshLocked()
}

func (g *Generator) stopAllLocked() {
	for hz, osc := range g.active {
		osc.Stop(g.ctx.CurrentTime())
		delete(g.active, hz)
	}
	g.refreshLocked()
}

func (g *Generator) refreshLocked() {
	if len(g.active) == 0 {
		g.currentHz, g.hasHz = 0, false
	}
}

// ended runs from the render goroutine once a timed tone has stopped.
func (g *Generator) ended(hz float64, osc *synth.Oscillator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[hz] != osc {
		return
	}
	delete(g.active, hz)
	g.refreshLocked()
	slog.Debug("tone ended", "hz", hz)
}
