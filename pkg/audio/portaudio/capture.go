// Package portaudio implements [audio.CaptureDevice] on top of the host
// PortAudio library. It requires cgo and a PortAudio installation.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/chordcoord/pkg/audio"
)

// Device opens the host's default input device.
type Device struct {
	mu sync.Mutex
}

var _ audio.CaptureDevice = (*Device)(nil)

// New returns a capture device backed by PortAudio.
func New() *Device {
	return &Device{}
}

// Open implements [audio.CaptureDevice]. PortAudio is initialised per stream
// and terminated when the stream is closed.
func (d *Device) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", errors.Join(audio.ErrDeviceUnavailable, err))
	}

	in, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: default input: %w", classify(err))
	}

	frames := cfg.FrameSize
	if frames <= 0 {
		frames = audio.DefaultFrameSize
	}
	p := portaudio.LowLatencyParameters(in, nil)
	p.Input.Channels = 1
	if cfg.SampleRate > 0 {
		p.SampleRate = float64(cfg.SampleRate)
	}

	tap := audio.NewTap(frames)
	stream, err := portaudio.OpenStream(p, func(samples []float32) {
		tap.Write(samples)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", in.Name, classify(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", classify(err))
	}

	slog.Debug("portaudio capture started", "device", in.Name, "sample_rate", p.SampleRate)

	return audio.NewTapStream(tap, int(p.SampleRate), func() error {
		return errors.Join(stream.Stop(), stream.Close(), portaudio.Terminate())
	}), nil
}

// classify wraps a PortAudio error with the matching audio sentinel.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access") {
		return errors.Join(audio.ErrPermissionDenied, err)
	}
	return errors.Join(audio.ErrDeviceUnavailable, err)
}
