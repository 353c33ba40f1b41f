package fretboard

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/chordcoord/internal/chord"
)

// fakeService identifies with the local tables and records requests.
type fakeService struct {
	mu       sync.Mutex
	requests [][]string
	err      error
	notesErr error
}

func (f *fakeService) Identify(_ context.Context, notes []string) (chord.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, notes)
	if f.err != nil {
		return chord.Result{}, f.err
	}
	return chord.Identify(notes), nil
}

func (f *fakeService) Notes(_ context.Context, name string) ([]string, error) {
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	if n := chord.Notes(name); n != nil {
		return n, nil
	}
	return nil, chord.ErrNotFound
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func toggleAll(t *testing.T, b *Board, pos ...[2]int) {
	t.Helper()
	for _, p := range pos {
		if err := b.Toggle(context.Background(), p[0], p[1]); err != nil {
			t.Fatalf("Toggle(%d, %d): %v", p[0], p[1], err)
		}
	}
}

func TestBoard_IdentifiesTriad(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	b := NewBoard(svc)
	// Open C shape, inner three strings: C E G.
	toggleAll(t, b, [2]int{3, 0}, [2]int{1, 3}, [2]int{2, 2})

	if got := b.SelectedNotes(); !slices.Equal(got, []string{"C", "E", "G"}) {
		t.Fatalf("SelectedNotes = %v", got)
	}
	c := b.Chord()
	if c == nil || c.Primary == nil || c.Primary.Name != "C Major" {
		t.Fatalf("Chord = %+v", c)
	}
	if svc.calls() != 1 {
		t.Errorf("identify calls = %d, want 1 (only once three are selected)", svc.calls())
	}
}

func TestBoard_Toggle(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	toggleAll(t, b, [2]int{0, 0}, [2]int{0, 3})
	if got := b.Positions(); len(got) != 1 || got[0].Fret != 3 || got[0].Note != "G" {
		t.Fatalf("same-string select = %+v, want only fret 3", got)
	}

	toggleAll(t, b, [2]int{0, 3})
	if got := b.Positions(); len(got) != 0 {
		t.Fatalf("deselect left %+v", got)
	}

	if err := b.Toggle(context.Background(), 6, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("string 6 err = %v", err)
	}
	if err := b.Toggle(context.Background(), 0, MaxFret+1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("fret %d err = %v", MaxFret+1, err)
	}
}

func TestBoard_MaxUniqueNotes(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	// E A D G, then C on the B string is a fifth distinct note.
	toggleAll(t, b, [2]int{0, 0}, [2]int{1, 0}, [2]int{2, 0}, [2]int{3, 0}, [2]int{4, 1})
	if got := b.SelectedNotes(); !slices.Equal(got, []string{"E", "A", "D", "G"}) {
		t.Fatalf("SelectedNotes = %v, want the fifth note rejected", got)
	}
}

func TestBoard_MaxUniqueNotes_ReplaceQuirk(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	// Five positions, four distinct notes: E A D G E.
	toggleAll(t, b, [2]int{0, 0}, [2]int{1, 0}, [2]int{2, 0}, [2]int{3, 0}, [2]int{4, 5})
	if n := len(b.Positions()); n != 5 {
		t.Fatalf("positions = %d, want 5", n)
	}

	// C on the B string replaces the E there, overflows, and is popped. The
	// E it replaced is gone too.
	toggleAll(t, b, [2]int{4, 1})
	got := b.Positions()
	if len(got) != 4 {
		t.Fatalf("positions = %+v, want 4", got)
	}
	for _, p := range got {
		if p.String == 4 {
			t.Errorf("string 4 still selected: %+v", p)
		}
	}
}

func TestBoard_SetTuning(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	toggleAll(t, b, [2]int{0, 0}, [2]int{0, 0}, [2]int{0, 2}, [2]int{1, 0}, [2]int{2, 0})
	// Standard: F# A D.
	b.SetTuning(context.Background(), DropD)
	if got := b.SelectedNotes(); !slices.Equal(got, []string{"E", "A", "D"}) {
		t.Errorf("notes after Drop D = %v", got)
	}
	if got := b.StringLabels(); !slices.Equal(got, []string{"D", "A", "D", "G", "B", "E"}) {
		t.Errorf("StringLabels = %v", got)
	}
	if b.Tuning().Name != "Drop D" {
		t.Errorf("Tuning = %q", b.Tuning().Name)
	}
}

func TestBoard_ServiceErrorKeepsChord(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	b := NewBoard(svc)
	toggleAll(t, b, [2]int{3, 0}, [2]int{1, 3}, [2]int{2, 2})
	before := b.Chord()

	svc.mu.Lock()
	svc.err = errors.New("chord-api unavailable")
	svc.mu.Unlock()
	toggleAll(t, b, [2]int{4, 1})

	if b.Chord() != before {
		t.Errorf("chord changed on service error: %+v", b.Chord())
	}
	if n := len(b.Positions()); n != 4 {
		t.Errorf("positions = %d, want the selection applied", n)
	}
}

func TestBoard_FewerThanThreeClearsChord(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	b := NewBoard(svc)
	toggleAll(t, b, [2]int{3, 0}, [2]int{1, 3}, [2]int{2, 2})
	toggleAll(t, b, [2]int{2, 2})
	if b.Chord() != nil {
		t.Errorf("Chord = %+v, want nil", b.Chord())
	}
	if svc.calls() != 1 {
		t.Errorf("identify calls = %d, want 1", svc.calls())
	}
}

func TestBoard_ReverseLookup(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	toggleAll(t, b, [2]int{0, 3})
	if err := b.ReverseLookup(context.Background(), "E Minor"); err != nil {
		t.Fatalf("ReverseLookup: %v", err)
	}

	snap := b.Snapshot()
	if !snap.ReverseLookup || len(snap.Positions) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !slices.Equal(snap.TargetNotes, []string{"E", "G", "B"}) {
		t.Errorf("TargetNotes = %v", snap.TargetNotes)
	}
	targets := b.Targets()
	if len(targets) == 0 {
		t.Fatal("no targets")
	}
	for _, p := range targets {
		if !slices.Contains(snap.TargetNotes, p.Note) {
			t.Errorf("target %+v not a chord tone", p)
		}
	}

	// The next click leaves reverse lookup and starts fresh.
	toggleAll(t, b, [2]int{5, 0})
	if snap := b.Snapshot(); snap.ReverseLookup || len(snap.Positions) != 1 {
		t.Errorf("after click = %+v", snap)
	}
	if b.Targets() != nil {
		t.Error("targets outside reverse lookup")
	}
}

func TestBoard_ReverseLookupErrorLeavesState(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	toggleAll(t, b, [2]int{0, 3})
	if err := b.ReverseLookup(context.Background(), "C Nothing"); !errors.Is(err, chord.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if snap := b.Snapshot(); snap.ReverseLookup || len(snap.Positions) != 1 {
		t.Errorf("state changed: %+v", snap)
	}
}

func TestBoard_ResetAndLoad(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	toggleAll(t, b, [2]int{3, 0}, [2]int{1, 3}, [2]int{2, 2})
	b.Reset()
	if snap := b.Snapshot(); len(snap.Positions) != 0 || snap.Chord != nil {
		t.Fatalf("after Reset = %+v", snap)
	}

	err := b.Load(context.Background(), OpenG, []Position{{String: 1, Fret: 0}, {String: 2, Fret: 0}, {String: 3, Fret: 0}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Open G: G D G, only two distinct notes.
	if got := b.SelectedNotes(); !slices.Equal(got, []string{"G", "D", "G"}) {
		t.Errorf("SelectedNotes = %v", got)
	}
	if c := b.Chord(); c == nil || c.Found || c.Message != chord.MsgTooFewNotes {
		t.Errorf("Chord = %+v", c)
	}
	if err := b.Load(context.Background(), Standard, []Position{{String: 9}}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Load out of range err = %v", err)
	}
}

func TestBoard_Scale(t *testing.T) {
	t.Parallel()

	b := NewBoard(&fakeService{})
	if b.Snapshot().ScaleNotes != nil {
		t.Error("scale notes while disabled")
	}
	if err := b.SetScale(Scale{Enabled: true, Root: "A", Type: "Minor Pentatonic"}); err != nil {
		t.Fatalf("SetScale: %v", err)
	}
	if got := b.Snapshot().ScaleNotes; !slices.Equal(got, []string{"A", "C", "D", "E", "G"}) {
		t.Errorf("ScaleNotes = %v", got)
	}
	if err := b.SetScale(Scale{Root: "A", Type: "Lydian"}); err == nil {
		t.Error("unknown scale accepted")
	}
}
