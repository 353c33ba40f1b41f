// Package mock provides in-memory implementations of [audio.CaptureDevice]
// and [audio.Clock] for use in unit tests.
//
// All mocks are safe for concurrent use. They record calls so that tests can
// assert on call counts and arguments, and they expose exported fields the
// test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.CaptureDevice{SampleRate: 44100}
//	stream, _ := dev.Open(ctx, audio.CaptureConfig{FrameSize: 2048})
//	dev.Feed(sine(440, 44100, 2048))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chordcoord/pkg/audio"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice is a mock implementation of [audio.CaptureDevice]. Every Open
// returns a fresh [audio.TapStream]; samples passed to [CaptureDevice.Feed]
// land in the most recently opened stream.
type CaptureDevice struct {
	mu sync.Mutex

	// SampleRate is reported by opened streams. Defaults to
	// [audio.DefaultSampleRate] when zero.
	SampleRate int

	// OpenErr, when non-nil, is returned by Open instead of a stream.
	OpenErr error

	// OpenCalls records the config of every Open invocation.
	OpenCalls []audio.CaptureConfig

	// CloseCount is the number of streams closed so far.
	CloseCount int

	current *audio.TapStream
}

var _ audio.CaptureDevice = (*CaptureDevice)(nil)

// Open implements [audio.CaptureDevice].
func (d *CaptureDevice) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	rate := d.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	size := cfg.FrameSize
	if size <= 0 {
		size = audio.DefaultFrameSize
	}
	s := audio.NewTapStream(audio.NewTap(size), rate, func() error {
		d.mu.Lock()
		d.CloseCount++
		d.mu.Unlock()
		return nil
	})
	d.current = s
	return s, nil
}

// Feed writes samples into the most recently opened stream. It is a no-op if
// no stream has been opened.
func (d *CaptureDevice) Feed(samples []float32) {
	d.mu.Lock()
	s := d.current
	d.mu.Unlock()
	if s != nil {
		s.Tap().Write(samples)
	}
}

// Opens returns the number of Open calls.
func (d *CaptureDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// Closes returns the number of streams closed.
func (d *CaptureDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CloseCount
}

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a settable [audio.Clock].
type Clock struct {
	mu  sync.Mutex
	now float64
}

var _ audio.Clock = (*Clock)(nil)

// CurrentTime implements [audio.Clock].
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t seconds.
func (c *Clock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (c *Clock) Advance(d float64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
