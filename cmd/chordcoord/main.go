// Command chordcoord is the guitar practice toolkit: an HTTP server for the
// browser client plus terminal tools for tuning, timekeeping and chord
// lookup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/chordcoord/internal/app"
	"github.com/MrWong99/chordcoord/internal/config"
)

// command is one subcommand. run receives the arguments after its name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) int
}

var commands = []command{
	{"serve", "run the HTTP and WebSocket server", runServe},
	{"tune", "microphone tuner in the terminal", runTune},
	{"metronome", "metronome on the speaker", runMetronome},
	{"tone", "play a reference tone or strum a tuning", runTone},
	{"fret", "identify fretboard positions or show a chord's positions", runFret},
	{"ask", "ask the guitar teacher a question", runAsk},
	{"export-click", "write a click track as a MIDI file", runExportClick},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(os.Stderr)
		return 2
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, args[1:])
		}
	}
	fmt.Fprintf(os.Stderr, "chordcoord: unknown command %q\n\n", args[0])
	usage(os.Stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: chordcoord <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'chordcoord <command> -h' for the flags of a command.")
}

// newFlagSet returns a flag set with the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("chordcoord "+name, flag.ContinueOnError)
	path := fs.String("config", "config.yaml", "path to the YAML configuration file")
	return fs, path
}

// loadConfig reads path. When required is false a missing file yields the
// defaults, so the terminal tools work without any setup.
func loadConfig(path string, required bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return config.Default(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return cfg, err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to stderr at the level held by lvl, so hot
// reload can change it later.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(app.Level(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// quietLogs keeps warnings and errors out of a full-screen TUI by sending
// them to a file, or discarding them.
func quietLogs(path string) func() {
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chordcoord: open log file: %v\n", err)
		return func() {}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return func() { _ = f.Close() }
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "chordcoord: "+format+"\n", args...)
	return 1
}
