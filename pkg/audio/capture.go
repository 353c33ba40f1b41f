package audio

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPermissionDenied is returned by [CaptureDevice.Open] when the user or
	// the operating system refuses microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDeviceUnavailable is returned by [CaptureDevice.Open] when no input
	// device exists or it cannot be opened.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")

	// ErrStreamClosed is returned by operations on a closed capture stream.
	ErrStreamClosed = errors.New("audio: capture stream closed")
)

// CaptureConfig describes the stream a [CaptureDevice] should open. Echo
// cancellation, noise suppression and automatic gain control are always
// requested off; hardware that cannot disable them is used as-is.
type CaptureConfig struct {
	// SampleRate is the preferred rate in Hz. Zero means the device default.
	SampleRate int

	// FrameSize is the analysis frame length the consumer will read.
	FrameSize int
}

// CaptureDevice opens exclusive microphone streams.
//
// Implementations must be safe for concurrent use.
type CaptureDevice interface {
	// Open acquires a single-channel input stream. It blocks until the stream
	// is live or ctx is cancelled. Errors wrap [ErrPermissionDenied] or
	// [ErrDeviceUnavailable] where the cause is known.
	Open(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}

// CaptureStream is a live single-channel input stream.
type CaptureStream interface {
	// SampleRate returns the actual sample rate of the stream in Hz.
	SampleRate() int

	// ReadFrame copies the most recent len(dst) samples into dst in
	// chronological order and returns how many were written. Positions with
	// no captured audio yet read as zero. It never blocks.
	ReadFrame(dst []float32) int

	// Close releases the underlying hardware. It is idempotent.
	Close() error
}

// TapStream is a [CaptureStream] backed by a [Tap]. Capture backends push
// samples into the tap from their driver callback; the consumer reads the
// latest frame on its own schedule.
type TapStream struct {
	tap        *Tap
	sampleRate int

	closeOnce sync.Once
	onClose   func() error
	closeErr  error
}

var _ CaptureStream = (*TapStream)(nil)

// NewTapStream returns a stream reading from tap. onClose, if non-nil, is
// called exactly once on the first Close.
func NewTapStream(tap *Tap, sampleRate int, onClose func() error) *TapStream {
	return &TapStream{tap: tap, sampleRate: sampleRate, onClose: onClose}
}

// SampleRate implements [CaptureStream].
func (s *TapStream) SampleRate() int { return s.sampleRate }

// ReadFrame implements [CaptureStream].
func (s *TapStream) ReadFrame(dst []float32) int { return s.tap.Latest(dst) }

// Tap returns the underlying ring buffer.
func (s *TapStream) Tap() *Tap { return s.tap }

// Close implements [CaptureStream].
func (s *TapStream) Close() error {
	s.closeOnce.Do(func() {
		s.tap.Close()
		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
	})
	return s.closeErr
}
