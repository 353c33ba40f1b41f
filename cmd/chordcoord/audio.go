package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep/v2"

	"github.com/MrWong99/chordcoord/internal/app"
	"github.com/MrWong99/chordcoord/internal/config"
	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/fretboard"
	"github.com/MrWong99/chordcoord/internal/metronome"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/pitch"
	"github.com/MrWong99/chordcoord/internal/tone"
	"github.com/MrWong99/chordcoord/internal/tui"
	"github.com/MrWong99/chordcoord/pkg/audio/portaudio"
	"github.com/MrWong99/chordcoord/pkg/audio/speaker"
	"github.com/MrWong99/chordcoord/pkg/audio/synth"
)

func runTune(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("tune")
	tuningName := fs.String("tuning", fretboard.Standard.Name, "tuning for the reference tones: "+tuningNames())
	logFile := fs.String("log", "", "write logs to this file instead of discarding them")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return fail("%v", err)
	}
	tuning, ok := fretboard.TuningByName(*tuningName)
	if !ok {
		return fail("unknown tuning %q (have %s)", *tuningName, tuningNames())
	}
	defer quietLogs(*logFile)()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := startLoop(ctx)

	det := pitch.New(loop, portaudio.New(), pitchOptions(cfg)...)
	if err := det.Start(ctx); err != nil {
		return fail("start capture: %v", err)
	}
	defer det.Stop()

	gen := tone.New(speakerFactory(cfg))
	defer func() { _ = gen.Close() }()

	model := tui.NewTuner(det, tui.WithReferenceTones(gen), tui.WithTuning(tuning))
	return runProgram(ctx, model)
}

func runMetronome(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("metronome")
	bpm := fs.Int("bpm", 0, "tempo; 0 uses the stored tempo")
	start := fs.Bool("start", false, "start clicking immediately")
	logFile := fs.String("log", "", "write logs to this file instead of discarding them")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return fail("%v", err)
	}
	defer quietLogs(*logFile)()

	st, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fail("%v", err)
	}
	defer closeStore()

	tempo := *bpm
	if tempo <= 0 {
		if tempo, err = st.Tempo(ctx); err != nil || tempo <= 0 {
			tempo = cfg.Metronome.BPM
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := startLoop(ctx)

	factory := func(context.Context) (metronome.Graph, error) {
		out, err := speaker.Open(beep.SampleRate(cfg.Audio.SampleRate), cfg.Audio.OutputBuffer)
		if err != nil {
			return nil, err
		}
		return metronome.NewSynthGraph(out.Context), nil
	}
	sched := metronome.New(loop, factory,
		metronome.WithBPM(tempo),
		metronome.WithLookahead(cfg.Metronome.Lookahead),
		metronome.WithScheduleAhead(cfg.Metronome.ScheduleAhead.Seconds()),
		metronome.WithTempoStore(st),
		metronome.WithMetrics(observe.DefaultMetrics()),
	)
	defer sched.Stop()

	if *start {
		if err := sched.Start(ctx); err != nil {
			return fail("start metronome: %v", err)
		}
	}
	return runProgram(ctx, tui.NewMetronome(sched))
}

func runTone(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("tone")
	hz := fs.Float64("hz", 0, "frequency to play")
	str := fs.Int("string", 0, "play the open string 1-6 (1 is the lowest) of -tuning")
	duration := fs.Duration("duration", 2*time.Second, "how long the tone rings")
	strum := fs.Bool("strum", false, "strum every open string of -tuning")
	tuningName := fs.String("tuning", fretboard.Standard.Name, "tuning for -string and -strum: "+tuningNames())
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		return fail("%v", err)
	}
	tuning, ok := fretboard.TuningByName(*tuningName)
	if !ok {
		return fail("unknown tuning %q (have %s)", *tuningName, tuningNames())
	}

	gen := tone.New(speakerFactory(cfg))
	defer func() { _ = gen.Close() }()

	var ring time.Duration
	switch {
	case *strum:
		freqs := tuning.OpenStringHz()
		if err := gen.Strum(ctx, freqs); err != nil {
			return fail("%v", err)
		}
		ring = time.Duration(len(freqs)-1)*tone.StrumDelay + tone.StrumLength
		fmt.Printf("strumming %s (%s)\n", tuning.Name, strings.Join(tuning.Labels(), " "))
	default:
		f := *hz
		if *str != 0 {
			if *str < 1 || *str > fretboard.Strings {
				return fail("-string must be between 1 and %d", fretboard.Strings)
			}
			f = tuning.Hz(*str - 1)
		}
		if f <= 0 || *duration <= 0 {
			return fail("need a positive -hz or a -string, and a positive -duration")
		}
		if err := gen.PlayTone(ctx, f, *duration); err != nil {
			return fail("%v", err)
		}
		ring = *duration
		if n, ok := pitch.Identify(f); ok {
			fmt.Printf("playing %.2f Hz (%s, %+.0f cents)\n", f, n.Name, n.Cents)
		}
	}

	select {
	case <-time.After(ring + cfg.Audio.OutputBuffer):
	case <-ctx.Done():
	}
	return 0
}

// ── Shared audio helpers ──────────────────────────────────────────────────────

func startLoop(ctx context.Context) *eventloop.Loop {
	loop := eventloop.New()
	go func() { _ = loop.Run(ctx) }()
	return loop
}

func pitchOptions(cfg *config.Config) []pitch.Option {
	opts := []pitch.Option{
		pitch.WithSampleRate(cfg.Audio.SampleRate),
		pitch.WithFrameSize(cfg.Audio.FrameSize),
		pitch.WithHoldLast(cfg.Audio.HoldLast),
		pitch.WithMetrics(observe.DefaultMetrics()),
	}
	if cfg.Audio.Estimator == config.EstimatorFFT {
		opts = append(opts, pitch.WithEstimator(pitch.NewFFTAutocorrelator()))
	}
	return opts
}

func speakerFactory(cfg *config.Config) tone.ContextFactory {
	return func(context.Context) (*synth.Context, error) {
		out, err := speaker.Open(beep.SampleRate(cfg.Audio.SampleRate), cfg.Audio.OutputBuffer)
		if err != nil {
			return nil, err
		}
		return out.Context, nil
	}
}

func runProgram(ctx context.Context, model tea.Model) int {
	_, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fail("%v", err)
	}
	return 0
}

func tuningNames() string {
	names := make([]string, len(fretboard.Tunings))
	for i, t := range fretboard.Tunings {
		names[i] = fmt.Sprintf("%q", t.Name)
	}
	return strings.Join(names, ", ")
}
