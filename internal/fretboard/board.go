// Package fretboard holds the state of the chord editor: selected
// positions, tuning, scale overlay and reverse lookup. Selections are
// identified through a [chord.Service].
package fretboard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/chordcoord/internal/chord"
)

// MaxUniqueNotes caps the distinct pitch classes a selection may hold.
const MaxUniqueNotes = 4

// ErrOutOfRange is returned for string or fret indexes off the board.
var ErrOutOfRange = errors.New("fretboard: position out of range")

// Position is one selected string/fret pair and the note it sounds.
type Position struct {
	String int    `json:"string"`
	Fret   int    `json:"fret"`
	Note   string `json:"note"`
}

// Scale is the scale overlay setting.
type Scale struct {
	Enabled bool   `json:"enabled"`
	Root    string `json:"root"`
	Type    string `json:"type"`
}

// Snapshot is a copy of the board state.
type Snapshot struct {
	Tuning        Tuning        `json:"tuning"`
	StringLabels  []string      `json:"stringLabels"`
	Positions     []Position    `json:"positions"`
	SelectedNotes []string      `json:"selectedNotes"`
	Chord         *chord.Result `json:"chord"`
	ReverseLookup bool          `json:"reverseLookup"`
	TargetNotes   []string      `json:"targetNotes"`
	Scale         Scale         `json:"scale"`
	ScaleNotes    []string      `json:"scaleNotes"`
}

// Board is the fretboard editor. It is safe for concurrent use.
type Board struct {
	svc chord.Service

	mu          sync.Mutex
	tuning      Tuning
	positions   []Position
	current     *chord.Result
	reverseMode bool
	targetNotes []string
	scale       Scale
	// gen guards against a slow identification overwriting a newer one.
	gen uint64
}

// NewBoard returns an empty board in standard tuning.
func NewBoard(svc chord.Service) *Board {
	return &Board{
		svc:    svc,
		tuning: Standard,
		scale:  Scale{Root: "C", Type: "Major"},
	}
}

// Toggle selects or deselects the position. Selecting a fret replaces any
// other selection on the same string. If the addition pushes the selection
// over [MaxUniqueNotes] distinct notes, the most recently appended position
// is dropped again. Clicking while reverse lookup is shown clears the board
// first.
func (b *Board) Toggle(ctx context.Context, str, fret int) error {
	if str < 0 || str >= Strings || fret < 0 || fret > MaxFret {
		return fmt.Errorf("%w: string %d fret %d", ErrOutOfRange, str, fret)
	}

	b.mu.Lock()
	if b.reverseMode {
		b.reverseMode = false
		b.positions = nil
	}

	if i := slices.IndexFunc(b.positions, func(p Position) bool { return p.String == str && p.Fret == fret }); i >= 0 {
		b.positions = slices.Delete(b.positions, i, i+1)
	} else {
		if i := slices.IndexFunc(b.positions, func(p Position) bool { return p.String == str }); i >= 0 {
			b.positions = slices.Delete(b.positions, i, i+1)
		}
		b.positions = append(b.positions, Position{String: str, Fret: fret, Note: b.tuning.Note(str, fret)})
	}

	// The pop runs even when the toggle was a deselect.
	if uniqueNotes(b.positions) > MaxUniqueNotes {
		b.positions = b.positions[:len(b.positions)-1]
	}
	b.mu.Unlock()

	b.identify(ctx)
	return nil
}

// SetTuning switches tuning, renames every selected note and re-identifies.
func (b *Board) SetTuning(ctx context.Context, t Tuning) {
	b.mu.Lock()
	b.tuning = t
	for i := range b.positions {
		p := &b.positions[i]
		p.Note = t.Note(p.String, p.Fret)
	}
	b.mu.Unlock()

	b.identify(ctx)
}

// Load replaces the selection with positions under tuning, as when opening
// a saved favorite. Notes are recomputed from the tuning.
func (b *Board) Load(ctx context.Context, t Tuning, positions []Position) error {
	for _, p := range positions {
		if p.String < 0 || p.String >= Strings || p.Fret < 0 || p.Fret > MaxFret {
			return fmt.Errorf("%w: string %d fret %d", ErrOutOfRange, p.String, p.Fret)
		}
	}

	b.mu.Lock()
	b.tuning = t
	b.reverseMode = false
	b.targetNotes = nil
	b.positions = make([]Position, len(positions))
	for i, p := range positions {
		b.positions[i] = Position{String: p.String, Fret: p.Fret, Note: t.Note(p.String, p.Fret)}
	}
	b.mu.Unlock()

	b.identify(ctx)
	return nil
}

// ReverseLookup clears the selection and highlights every position of the
// named chord's notes. On error the board is left unchanged.
func (b *Board) ReverseLookup(ctx context.Context, name string) error {
	notes, err := b.svc.Notes(ctx, name)
	if err != nil {
		return fmt.Errorf("fretboard: reverse lookup %q: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.reverseMode = true
	b.positions = nil
	b.targetNotes = notes
	return nil
}

// Targets returns every board position whose note is one of the reverse
// lookup targets.
func (b *Board) Targets() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.reverseMode {
		return nil
	}
	var out []Position
	for s := range Strings {
		for f := 0; f <= MaxFret; f++ {
			if n := b.tuning.Note(s, f); slices.Contains(b.targetNotes, n) {
				out = append(out, Position{String: s, Fret: f, Note: n})
			}
		}
	}
	return out
}

// Reset clears the selection, the chord and reverse lookup mode.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.positions = nil
	b.current = nil
	b.reverseMode = false
}

// SetScale configures the scale overlay.
func (b *Board) SetScale(s Scale) error {
	if _, err := ScaleNotes(s.Root, s.Type); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scale = s
	return nil
}

// SelectedNotes returns the selected notes ordered by string, then fret.
// The first entry approximates the bass note.
func (b *Board) SelectedNotes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return selectedNotes(b.positions)
}

// StringLabels returns the open-string note names of the current tuning.
func (b *Board) StringLabels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tuning.Labels()
}

// Tuning returns the current tuning.
func (b *Board) Tuning() Tuning {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tuning
}

// Positions returns a copy of the selection in selection order.
func (b *Board) Positions() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.positions)
}

// Chord returns the last identification result, or nil.
func (b *Board) Chord() *chord.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Snapshot returns a copy of the full board state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Tuning:        b.tuning,
		StringLabels:  b.tuning.Labels(),
		Positions:     slices.Clone(b.positions),
		SelectedNotes: selectedNotes(b.positions),
		Chord:         b.current,
		ReverseLookup: b.reverseMode,
		TargetNotes:   slices.Clone(b.targetNotes),
		Scale:         b.scale,
	}
	if b.scale.Enabled {
		s.ScaleNotes, _ = ScaleNotes(b.scale.Root, b.scale.Type)
	}
	return s
}

// identify asks the chord service about the current selection. With fewer
// than three positions the chord is cleared without a request. Service
// errors are logged and keep the previous result.
func (b *Board) identify(ctx context.Context) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	if len(b.positions) < 3 {
		b.current = nil
		b.mu.Unlock()
		return
	}
	notes := selectedNotes(b.positions)
	b.mu.Unlock()

	res, err := b.svc.Identify(ctx, notes)
	if err != nil {
		slog.Warn("chord identification failed", "notes", notes, "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen == gen {
		b.current = &res
	}
}

func selectedNotes(positions []Position) []string {
	sorted := slices.Clone(positions)
	slices.SortStableFunc(sorted, func(a, b Position) int {
		return cmp.Or(cmp.Compare(a.String, b.String), cmp.Compare(a.Fret, b.Fret))
	})
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.Note
	}
	return out
}

func uniqueNotes(positions []Position) int {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		seen[p.Note] = struct{}{}
	}
	return len(seen)
}
