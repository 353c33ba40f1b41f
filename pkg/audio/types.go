// Package audio defines the audio vocabulary shared by the pitch detector,
// the beat scheduler and the tone generator: the audio clock, capture
// interfaces, the time-domain sampling tap and PCM conversion helpers.
//
// Concrete backends live in sub-packages (portaudio, synth, speaker) so that
// cgo-dependent code is only linked by binaries that need it.
package audio

import "fmt"

// DefaultFrameSize is the number of samples in one analysis frame.
const DefaultFrameSize = 2048

// DefaultSampleRate is the sample rate assumed when a source does not report one.
const DefaultSampleRate = 44100

// Frame is a fixed-length ordered sequence of signed normalised samples in
// [-1, 1], captured at SampleRate. Frames are ephemeral: a new one is read
// every detection cycle and never persisted.
type Frame struct {
	// Samples holds mono time-domain samples.
	Samples []float32

	// SampleRate in Hz (e.g. 44100, 48000).
	SampleRate int
}

// Clock is a monotonically increasing, high-resolution time source tied to
// the audio hardware's sample clock. It is distinct from wall-clock time and
// from the host task scheduler.
//
// CurrentTime returns seconds since the clock was created.
type Clock interface {
	CurrentTime() float64
}

// ClockFunc adapts a plain function to the [Clock] interface.
type ClockFunc func() float64

// CurrentTime implements [Clock].
func (f ClockFunc) CurrentTime() float64 { return f() }

// RunState is the lifecycle state of a real-time subsystem instance.
type RunState int

const (
	// Idle means no audio resources are held.
	Idle RunState = iota

	// Running means the subsystem owns a capture stream or output graph and
	// has a pending driver callback.
	Running
)

// String returns the lower-case state name.
func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}
