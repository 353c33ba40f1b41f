package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chordcoord/internal/pitch"
	"github.com/MrWong99/chordcoord/pkg/audio"
)

// startTimeout bounds the wait for the opening control message.
const startTimeout = 10 * time.Second

// tunerControl is a text message from the tuner client.
type tunerControl struct {
	Type       string `json:"type"` // "start", "error" or "stop"
	SampleRate int    `json:"sampleRate,omitempty"`
	Code       string `json:"code,omitempty"` // "permission_denied" or "device_unavailable"
}

// pitchMessage is pushed once per detection cycle.
type pitchMessage struct {
	Type        string      `json:"type"`
	FrequencyHz *float64    `json:"frequencyHz"`
	Note        *pitch.Note `json:"note"`
}

func newPitchMessage(e pitch.Estimate) pitchMessage {
	msg := pitchMessage{Type: "pitch"}
	if !e.OK {
		return msg
	}
	hz := e.Hz
	msg.FrequencyHz = &hz
	if n, ok := pitch.Identify(hz); ok {
		msg.Note = &n
	}
	return msg
}

// handleTunerSocket runs a pitch detector over PCM streamed by the client.
//
// The client opens with {"type":"start","sampleRate":N}, or with
// {"type":"error","code":...} when its microphone is unusable, then sends
// binary float32-LE mono chunks.
func (s *Server) handleTunerSocket(w http.ResponseWriter, r *http.Request) {
	if s.loop == nil {
		writeError(w, http.StatusServiceUnavailable, "audio sessions are disabled")
		return
	}
	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	closed := s.metrics.StreamOpened(ctx, "tuner")
	defer closed()

	finish(ctx, conn, "tuner", s.runTuner(ctx, conn))
}

func (s *Server) runTuner(ctx context.Context, conn *websocket.Conn) error {
	cfg := s.AudioSettings()

	start, err := readStart(ctx, conn)
	if err != nil {
		return err
	}
	clientRate := start.SampleRate
	if clientRate <= 0 {
		clientRate = cfg.SampleRate
	}

	dev := audio.NewPushDevice(cfg.SampleRate)
	if start.Type == "error" {
		dev.Fail(clientCaptureError(start.Code))
	}

	det := pitch.New(s.loop, dev, tunerOptions(cfg, s)...)
	if err := det.Start(ctx); err != nil {
		return err
	}
	defer det.Stop()

	estimates, cancel := det.Subscribe(4)
	defer cancel()

	conv := &audio.Converter{TargetRate: cfg.SampleRate}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-estimates:
				if !ok {
					return nil
				}
				if err := wsjson.Write(gctx, conn, newPitchMessage(e)); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		for {
			typ, data, err := conn.Read(gctx)
			if err != nil {
				return err
			}
			if typ == websocket.MessageBinary {
				dev.Push(conv.Float32LE(data, clientRate))
				continue
			}
			var ctl tunerControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				return fmt.Errorf("api: tuner: bad control message: %w", err)
			}
			if ctl.Type == "stop" {
				return errSessionDone
			}
		}
	})

	return g.Wait()
}

func readStart(ctx context.Context, conn *websocket.Conn) (tunerControl, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	var ctl tunerControl
	if err := wsjson.Read(ctx, conn, &ctl); err != nil {
		return ctl, fmt.Errorf("api: tuner: read start: %w", err)
	}
	if ctl.Type != "start" && ctl.Type != "error" {
		return ctl, fmt.Errorf("api: tuner: expected start message, got %q", ctl.Type)
	}
	return ctl, nil
}

func clientCaptureError(code string) error {
	if code == "permission_denied" {
		return audio.ErrPermissionDenied
	}
	return audio.ErrDeviceUnavailable
}

func tunerOptions(cfg AudioSettings, s *Server) []pitch.Option {
	opts := []pitch.Option{
		pitch.WithSampleRate(cfg.SampleRate),
		pitch.WithFrameSize(cfg.FrameSize),
		pitch.WithHoldLast(cfg.HoldLast),
		pitch.WithMetrics(s.metrics),
	}
	if cfg.UseFFT {
		opts = append(opts, pitch.WithEstimator(pitch.NewFFTAutocorrelator()))
	}
	return opts
}
