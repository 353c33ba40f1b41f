package metronome

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/chordcoord/pkg/audio"
	"github.com/MrWong99/chordcoord/pkg/audio/synth"
)

// Click sound. Accented beats are higher so the downbeat of each bar stands
// out.
const (
	AccentHz    = 1000.0
	BeatHz      = 800.0
	ClickLength = 0.1   // seconds
	ClickDecay  = 0.001 // gain at the end of the click
)

// Event is one scheduled click, consumed exactly once by the output graph.
type Event struct {
	BeatIndex int     `json:"beatIndex"`
	AudioTime float64 `json:"audioTime"`
	Accent    bool    `json:"accent"`
}

// Hz returns the click tone for the event.
func (e Event) Hz() float64 {
	if e.Accent {
		return AccentHz
	}
	return BeatHz
}

// Graph is the audio output a [Scheduler] drives: it owns the audio clock
// and turns events into sound at their audio time.
type Graph interface {
	audio.Clock

	// Click schedules the sound for e. It must not block.
	Click(e Event) error

	// Close releases the output. It must be idempotent.
	Close() error
}

// GraphFactory acquires a fresh output graph on every [Scheduler.Start].
type GraphFactory func(ctx context.Context) (Graph, error)

// ─── SynthGraph ───────────────────────────────────────────────────────────────

// SynthGraph renders clicks on a [synth.Context]: a sine oscillator per beat
// with a fast exponential decay.
type SynthGraph struct {
	ctx *synth.Context
}

var _ Graph = (*SynthGraph)(nil)

// NewSynthGraph wraps c. Closing the graph closes c.
func NewSynthGraph(c *synth.Context) *SynthGraph {
	return &SynthGraph{ctx: c}
}

// CurrentTime implements [audio.Clock].
func (g *SynthGraph) CurrentTime() float64 { return g.ctx.CurrentTime() }

// Click implements [Graph].
func (g *SynthGraph) Click(e Event) error {
	osc := g.ctx.NewOscillator(synth.Sine, e.Hz())
	gain := osc.Gain()
	gain.SetValueAtTime(1, e.AudioTime)
	gain.ExponentialRampToValueAtTime(ClickDecay, e.AudioTime+ClickLength)
	if err := osc.Start(e.AudioTime); err != nil {
		return err
	}
	osc.Stop(e.AudioTime + ClickLength)
	return nil
}

// Close implements [Graph].
func (g *SynthGraph) Close() error { return g.ctx.Close() }

// Context returns the underlying synthesis context.
func (g *SynthGraph) Context() *synth.Context { return g.ctx }

// ─── RecordingGraph ───────────────────────────────────────────────────────────

// ErrGraphClosed is returned by [RecordingGraph.Click] after Close.
var ErrGraphClosed = errors.New("metronome: graph closed")

// RecordingGraph collects events instead of playing them. It backs offline
// click-track export and tests. The clock is supplied by the caller.
type RecordingGraph struct {
	clock audio.Clock

	mu     sync.Mutex
	events []Event
	closed bool
}

var _ Graph = (*RecordingGraph)(nil)

// NewRecordingGraph returns a recorder reading time from clock.
func NewRecordingGraph(clock audio.Clock) *RecordingGraph {
	return &RecordingGraph{clock: clock}
}

// CurrentTime implements [audio.Clock].
func (g *RecordingGraph) CurrentTime() float64 { return g.clock.CurrentTime() }

// Click implements [Graph].
func (g *RecordingGraph) Click(e Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGraphClosed
	}
	g.events = append(g.events, e)
	return nil
}

// Close implements [Graph].
func (g *RecordingGraph) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (g *RecordingGraph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Events returns a copy of the recorded events.
func (g *RecordingGraph) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...)
}
