package pitch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/pkg/audio"
)

// Option configures a [Detector] during construction.
type Option func(*Detector)

// WithEstimator replaces the default [Autocorrelator].
func WithEstimator(e Estimator) Option {
	return func(d *Detector) {
		d.est = e
	}
}

// WithFrameSize sets the analysis frame length. Defaults to
// [audio.DefaultFrameSize].
func WithFrameSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.cfg.FrameSize = n
		}
	}
}

// WithSampleRate sets the preferred capture rate. Zero uses the device default.
func WithSampleRate(hz int) Option {
	return func(d *Detector) {
		d.cfg.SampleRate = hz
	}
}

// WithHoldLast keeps the previous estimate when a frame yields none, so the
// display does not flicker between plucks. Stop always clears it.
func WithHoldLast(hold bool) Option {
	return func(d *Detector) {
		d.holdLast = hold
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// Detector turns a live capture stream into a stream of pitch estimates. One
// estimate is produced per event-loop frame callback while Running.
//
// All methods are safe for concurrent use. Start and Stop are serialised so
// that a stream is always released before the next one is acquired.
type Detector struct {
	loop     *eventloop.Loop
	device   audio.CaptureDevice
	est      Estimator
	cfg      audio.CaptureConfig
	holdLast bool
	metrics  *observe.Metrics

	// lifecycle serialises Start and Stop; Open may block for a permission
	// prompt and must not hold mu.
	lifecycle sync.Mutex

	mu      sync.Mutex
	state   audio.RunState
	gen     uint64 // bumped on every Start and Stop; stale callbacks compare and bail
	stream  audio.CaptureStream
	timer   eventloop.TimerID
	current Estimate
	frame   []float32
	subs    map[uint64]chan Estimate
	nextSub uint64
}

// New creates an idle detector that captures from device and runs its cycle
// on loop.
func New(loop *eventloop.Loop, device audio.CaptureDevice, opts ...Option) *Detector {
	d := &Detector{
		loop:   loop,
		device: device,
		cfg:    audio.CaptureConfig{FrameSize: audio.DefaultFrameSize},
		subs:   make(map[uint64]chan Estimate),
	}
	for _, o := range opts {
		o(d)
	}
	if d.est == nil {
		d.est = &Autocorrelator{}
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Start acquires the capture stream and arms the first frame callback. It is
// a no-op while Running. On failure the detector stays Idle and the error
// wraps [audio.ErrPermissionDenied] or [audio.ErrDeviceUnavailable] when the
// cause is known.
func (d *Detector) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.State() == audio.Running {
		return nil
	}

	stream, err := d.device.Open(ctx, d.cfg)
	if err != nil {
		slog.Warn("pitch: capture unavailable", "err", err)
		return fmt.Errorf("pitch: start: %w", err)
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.state = audio.Running
	d.stream = stream
	d.current = None()
	if len(d.frame) != d.cfg.FrameSize {
		d.frame = make([]float32, d.cfg.FrameSize)
	}
	d.timer = d.loop.RequestFrame(func() { d.cycle(gen) })
	d.mu.Unlock()

	slog.Info("pitch detector started", "sample_rate", stream.SampleRate(), "frame_size", d.cfg.FrameSize)
	return nil
}

// Stop cancels the pending frame callback, releases the capture stream and
// clears the current estimate. Subscribers receive a final none estimate.
// Stop is idempotent.
func (d *Detector) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	if d.state == audio.Idle {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.loop.Cancel(d.timer)
	stream := d.stream
	d.stream = nil
	d.state = audio.Idle
	d.current = None()
	d.publishLocked(d.current)
	d.mu.Unlock()

	if err := stream.Close(); err != nil {
		slog.Warn("pitch: closing capture stream", "err", err)
	}
	slog.Info("pitch detector stopped")
}

// Current returns the latest estimate. It is none while Idle.
func (d *Detector) Current() Estimate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// State returns the run state.
func (d *Detector) State() audio.RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Subscribe returns a channel that receives every published estimate. When
// the subscriber falls behind, older estimates are dropped in favour of the
// newest. The returned cancel func unregisters and closes the channel; it is
// safe to call more than once.
func (d *Detector) Subscribe(buffer int) (<-chan Estimate, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Estimate, buffer)

	d.mu.Lock()
	d.nextSub++
	id := d.nextSub
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(ch)
		})
	}
}

// cycle runs one detection pass on the event loop and re-arms itself.
func (d *Detector) cycle(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen || d.state != audio.Running {
		return
	}

	start := time.Now()
	n := d.stream.ReadFrame(d.frame)
	est := d.est.Estimate(d.frame[:n], d.stream.SampleRate())
	ctx := context.Background()
	d.metrics.PitchCycleDuration.Record(ctx, time.Since(start).Seconds())
	d.metrics.RecordPitchEstimate(ctx, est.OK)

	if est.OK || !d.holdLast {
		d.current = est
	}
	d.publishLocked(d.current)

	d.timer = d.loop.RequestFrame(func() { d.cycle(gen) })
}

// publishLocked offers e to every subscriber without blocking. Must be called
// with d.mu held.
func (d *Detector) publishLocked(e Estimate) {
	for _, ch := range d.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}
