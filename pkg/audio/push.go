package audio

import (
	"context"
	"sync"
)

// PushDevice is a [CaptureDevice] whose samples are pushed by the caller,
// typically PCM received from a browser over a network connection. Each Open
// replaces the previous stream; [PushDevice.Push] always writes to the
// newest one.
type PushDevice struct {
	rate int

	mu      sync.Mutex
	current *TapStream
	err     error
}

var _ CaptureDevice = (*PushDevice)(nil)

// NewPushDevice returns a device whose streams report sampleRate.
func NewPushDevice(sampleRate int) *PushDevice {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &PushDevice{rate: sampleRate}
}

// Fail makes every later Open return err. Remote clients use it to report a
// denied or missing microphone.
func (d *PushDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Open implements [CaptureDevice].
func (d *PushDevice) Open(ctx context.Context, cfg CaptureConfig) (CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	size := cfg.FrameSize
	if size <= 0 {
		size = DefaultFrameSize
	}
	d.current = NewTapStream(NewTap(size), d.rate, nil)
	return d.current, nil
}

// Push appends samples to the open stream. It is a no-op before Open and
// after the stream is closed.
func (d *PushDevice) Push(samples []float32) {
	d.mu.Lock()
	s := d.current
	d.mu.Unlock()
	if s != nil {
		s.Tap().Write(samples)
	}
}

// SampleRate returns the rate streams report.
func (d *PushDevice) SampleRate() int { return d.rate }
