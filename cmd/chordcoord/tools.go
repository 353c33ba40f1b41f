package main

import (
	"context"
	"errors"
	"fmt"
	"flag"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/chordcoord/internal/app"
	"github.com/MrWong99/chordcoord/internal/chord"
	"github.com/MrWong99/chordcoord/internal/config"
	"github.com/MrWong99/chordcoord/internal/fretboard"
	"github.com/MrWong99/chordcoord/internal/metronome"
	"github.com/MrWong99/chordcoord/internal/teacher"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
)

func runFret(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("fret")
	name := fs.String("chord", "", "show every position of this chord instead of identifying")
	tuningName := fs.String("tuning", fretboard.Standard.Name, "tuning: "+tuningNames())
	frets := fs.Int("frets", 12, "highest fret drawn for -chord")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: chordcoord fret [flags] string:fret ...")
		fmt.Fprintln(fs.Output(), "Strings are numbered 1-6 starting at the lowest; fret 0 is the open string.")
		fs.PrintDefaults()
	}
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

	board := fretboard.NewBoard(app.NewChordService(cfg, nil))
	board.SetTuning(ctx, tuning)

	if *name != "" {
		if err := board.ReverseLookup(ctx, *name); err != nil {
			if errors.Is(err, chord.ErrNotFound) {
				if s, ok := chord.Suggest(*name); ok {
					return fail("unknown chord %q, did you mean %q?", *name, s)
				}
			}
			return fail("%v", err)
		}
		printTargets(os.Stdout, board.Snapshot(), board.Targets(), *frets)
		return 0
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	for _, arg := range fs.Args() {
		str, fret, err := parsePosition(arg)
		if err != nil {
			return fail("%v", err)
		}
		if err := board.Toggle(ctx, str, fret); err != nil {
			return fail("%v", err)
		}
	}
	printChord(os.Stdout, board.Snapshot())
	return 0
}

// parsePosition reads "string:fret" with 1-based strings.
func parsePosition(s string) (str, fret int, err error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("position %q: want string:fret", s)
	}
	str, err = strconv.Atoi(a)
	if err != nil || str < 1 || str > fretboard.Strings {
		return 0, 0, fmt.Errorf("position %q: string must be 1-%d", s, fretboard.Strings)
	}
	fret, err = strconv.Atoi(b)
	if err != nil || fret < 0 || fret > fretboard.MaxFret {
		return 0, 0, fmt.Errorf("position %q: fret must be 0-%d", s, fretboard.MaxFret)
	}
	return str - 1, fret, nil
}

func printChord(w io.Writer, snap fretboard.Snapshot) {
	fmt.Fprintf(w, "tuning:   %s (%s)\n", snap.Tuning.Name, strings.Join(snap.StringLabels, " "))
	fmt.Fprintf(w, "notes:    %s\n", strings.Join(snap.SelectedNotes, " "))
	switch res := snap.Chord; {
	case res == nil:
		fmt.Fprintf(w, "chord:    %s\n", chord.MsgTooFewNotes)
	case !res.Found:
		fmt.Fprintf(w, "chord:    %s\n", res.Message)
	default:
		fmt.Fprintf(w, "chord:    %s\n", res.Primary.Name)
		for _, alt := range res.Alternatives {
			fmt.Fprintf(w, "          or %s\n", alt.Name)
		}
	}
}

// printTargets draws the board up to maxFret, high string on top, marking
// every target with its note name.
func printTargets(w io.Writer, snap fretboard.Snapshot, targets []fretboard.Position, maxFret int) {
	maxFret = min(max(maxFret, 0), fretboard.MaxFret)
	marked := make(map[[2]int]string, len(targets))
	for _, p := range targets {
		marked[[2]int{p.String, p.Fret}] = p.Note
	}

	fmt.Fprintf(w, "%s: %s\n\n", snap.Tuning.Name, strings.Join(snap.TargetNotes, " "))
	fmt.Fprint(w, "    ")
	for f := 0; f <= maxFret; f++ {
		fmt.Fprintf(w, "%-4d", f)
	}
	fmt.Fprintln(w)
	for s := fretboard.Strings - 1; s >= 0; s-- {
		fmt.Fprintf(w, "%-2s |", snap.StringLabels[s])
		for f := 0; f <= maxFret; f++ {
			if n, ok := marked[[2]int{s, f}]; ok {
				fmt.Fprintf(w, "%-3s|", n)
			} else {
				fmt.Fprint(w, "---|")
			}
		}
		fmt.Fprintln(w)
	}
}

func runAsk(ctx context.Context, args []string) int {
	fs, configPath := newFlagSet("ask")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: chordcoord ask [flags] question...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		return 2
	}
	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return fail("%v", err)
	}
	logger, _ := newLogger(config.LogWarn)
	slog.SetDefault(logger)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	t, err := app.NewTeacher(cfg, reg, nil)
	if err != nil {
		return fail("%v", err)
	}
	if t == nil {
		return fail("no LLM provider configured; set providers.llm in %s", *configPath)
	}

	chunks, err := t.Stream(ctx, teacher.Question(question))
	if err != nil {
		return fail("%v", err)
	}
	if err := printStream(os.Stdout, chunks); err != nil {
		return fail("%v", err)
	}
	return 0
}

// printStream writes chunks as they arrive and ends with a newline.
func printStream(w io.Writer, chunks <-chan llm.Chunk) error {
	for c := range chunks {
		if c.FinishReason == llm.FinishReasonError {
			fmt.Fprintln(w)
			return fmt.Errorf("teacher: %s", c.Text)
		}
		fmt.Fprint(w, c.Text)
	}
	fmt.Fprintln(w)
	return nil
}

func runExportClick(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("chordcoord export-click", flag.ContinueOnError)
	bpm := fs.Int("bpm", metronome.DefaultBPM, "tempo")
	beats := fs.Int("beats", 4*metronome.BeatsPerBar, "number of clicks")
	out := fs.String("o", "click.mid", "output file; - writes to stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *out == "-" {
		if err := metronome.ExportSMF(os.Stdout, *bpm, *beats); err != nil {
			return fail("%v", err)
		}
		return 0
	}

	f, err := os.Create(*out)
	if err != nil {
		return fail("%v", err)
	}
	if err := metronome.ExportSMF(f, *bpm, *beats); err != nil {
		_ = f.Close()
		return fail("%v", err)
	}
	if err := f.Close(); err != nil {
		return fail("%v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d beats at %d bpm to %s\n", *beats, *bpm, *out)
	return 0
}
