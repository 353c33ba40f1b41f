package metronome

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/observe"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"go.opentelemetry.io/otel/metric/noop"
)

// General MIDI percussion layout used for exported click tracks.
const (
	PercussionChannel = 9  // GM channel 10, zero based
	HighWoodBlock     = 76 // accented beats
	LowWoodBlock      = 77

	// TicksPerQuarter is the SMF resolution. One beat is one quarter note.
	TicksPerQuarter = 960

	clickTicks = TicksPerQuarter / 8
)

// Record runs a scheduler offline at bpm and returns the first beats events
// it hands to the graph. The scheduler runs on its own manual clock, so the
// result does not depend on wall time.
func Record(bpm, beats int) ([]Event, error) {
	if bpm <= 0 {
		return nil, ErrInvalidTempo
	}
	if beats <= 0 {
		return nil, nil
	}

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("metronome: record: %w", err)
	}

	clock := &eventloop.ManualClock{}
	loop := eventloop.New(eventloop.WithClock(clock))
	graph := NewRecordingGraph(clock)
	s := New(loop, func(context.Context) (Graph, error) { return graph, nil },
		WithBPM(bpm), WithMetrics(metrics))

	if err := s.Start(context.Background()); err != nil {
		return nil, err
	}
	for len(graph.Events()) < beats {
		loop.AdvanceBy(time.Second)
	}
	s.Stop()

	return graph.Events()[:beats], nil
}

// ExportSMF writes a single-track Standard MIDI File with beats clicks at
// bpm in 4/4. Accented beats use the high wood block.
func ExportSMF(w io.Writer, bpm, beats int) error {
	events, err := Record(bpm, beats)
	if err != nil {
		return err
	}

	var tr smf.Track
	tr.Add(0, smf.MetaMeter(BeatsPerBar, 4))
	tr.Add(0, smf.MetaTempo(float64(bpm)))

	var last uint32
	for _, e := range events {
		at := uint32(math.Round(e.AudioTime * float64(bpm) / 60 * TicksPerQuarter))
		key, vel := uint8(LowWoodBlock), uint8(100)
		if e.Accent {
			key, vel = HighWoodBlock, 127
		}
		tr.Add(at-last, midi.NoteOn(PercussionChannel, key, vel))
		tr.Add(clickTicks, midi.NoteOff(PercussionChannel, key))
		last = at + clickTicks
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	s.Add(tr)
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("metronome: export: %w", err)
	}
	return nil
}
