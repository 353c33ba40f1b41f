package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chordcoord/internal/metronome"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/pkg/audio"
	"github.com/MrWong99/chordcoord/pkg/audio/synth"
)

// metronomeCommand is a text message from the metronome client.
type metronomeCommand struct {
	Type string `json:"type"` // "start", "stop" or "bpm"
	BPM  int    `json:"bpm,omitempty"`
}

type beatMessage struct {
	Type      string  `json:"type"`
	BeatIndex int     `json:"beatIndex"`
	AudioTime float64 `json:"audioTime"`
	Accent    bool    `json:"accent"`
}

type stateMessage struct {
	Type    string `json:"type"`
	Running bool   `json:"running"`
	BPM     int    `json:"bpm"`
}

// handleMetronomeSocket runs a beat scheduler whose clicks are rendered on
// the server and streamed as binary PCM16-LE mono at the configured sample
// rate. Beat notifications arrive as text at each click's audio time.
func (s *Server) handleMetronomeSocket(w http.ResponseWriter, r *http.Request) {
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
	closed := s.metrics.StreamOpened(ctx, "metronome")
	defer closed()

	finish(ctx, conn, "metronome", s.runMetronome(ctx, conn))
}

func (s *Server) runMetronome(ctx context.Context, conn *websocket.Conn) error {
	cfg := s.AudioSettings()

	bpm, err := s.store.Tempo(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("api: metronome: loading tempo", "err", err)
		bpm = cfg.BPM
	}

	g, gctx := errgroup.WithContext(ctx)

	// Each Start gets a fresh synth context paced in real time. The pacer
	// ends once the scheduler closes the graph on Stop.
	factory := func(context.Context) (metronome.Graph, error) {
		sc := synth.New(beep.SampleRate(cfg.SampleRate))
		pacer := synth.NewPacer(sc, synth.DefaultChunk, func(mono []float64) {
			_ = conn.Write(gctx, websocket.MessageBinary, audio.EncodePCM16LE(mono))
		})
		go func() { _ = pacer.Run(gctx) }()
		return metronome.NewSynthGraph(sc), nil
	}

	sched := metronome.New(s.loop, factory,
		metronome.WithBPM(bpm),
		metronome.WithLookahead(cfg.Lookahead),
		metronome.WithScheduleAhead(cfg.ScheduleAhead.Seconds()),
		metronome.WithTempoStore(s.store),
		metronome.WithMetrics(s.metrics),
	)
	defer sched.Stop()

	beats, cancel := sched.Subscribe(16)
	defer cancel()

	sendState := func() error {
		return wsjson.Write(gctx, conn, stateMessage{
			Type:    "state",
			Running: sched.State() == audio.Running,
			BPM:     sched.BPM(),
		})
	}
	if err := sendState(); err != nil {
		return err
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-beats:
				if !ok {
					return nil
				}
				msg := beatMessage{Type: "beat", BeatIndex: e.BeatIndex, AudioTime: e.AudioTime, Accent: e.Accent}
				if err := wsjson.Write(gctx, conn, msg); err != nil {
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
			if typ != websocket.MessageText {
				continue
			}
			var cmd metronomeCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				return fmt.Errorf("api: metronome: bad command: %w", err)
			}

			var cmdErr error
			switch cmd.Type {
			case "start":
				cmdErr = sched.Start(gctx)
			case "stop":
				sched.Stop()
			case "bpm":
				cmdErr = sched.SetBPM(gctx, cmd.BPM)
			default:
				cmdErr = fmt.Errorf("api: metronome: unknown command %q", cmd.Type)
			}
			if cmdErr != nil {
				if err := wsjson.Write(gctx, conn, errorMessage{Type: "error", Message: cmdErr.Error()}); err != nil {
					return err
				}
			}
			if err := sendState(); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}
