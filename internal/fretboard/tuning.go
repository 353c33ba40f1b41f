package fretboard

import (
	"fmt"
	"slices"

	"github.com/MrWong99/chordcoord/internal/chord"
	"github.com/MrWong99/chordcoord/internal/pitch"
)

// Strings is the number of guitar strings. String 0 is the low E string.
const Strings = 6

// MaxFret is the highest selectable fret.
const MaxFret = 24

// Tuning maps each open string to a MIDI note number, low string first.
type Tuning struct {
	Name      string       `json:"name"`
	MIDIBases [Strings]int `json:"midiBases"`
}

// Note returns the pitch class sounding at fret on string s.
func (t Tuning) Note(s, fret int) string {
	return pitch.NoteNames[(t.MIDIBases[s]+fret)%12]
}

// Hz returns the frequency of the open string s.
func (t Tuning) Hz(s int) float64 { return pitch.MIDIToHz(t.MIDIBases[s]) }

// OpenStringHz returns the open-string frequencies, low string first.
func (t Tuning) OpenStringHz() []float64 {
	out := make([]float64, Strings)
	for i := range out {
		out[i] = t.Hz(i)
	}
	return out
}

// Labels returns the pitch class of each open string.
func (t Tuning) Labels() []string {
	out := make([]string, Strings)
	for i, m := range t.MIDIBases {
		out[i] = pitch.NoteNames[m%12]
	}
	return out
}

// Built-in tunings.
var (
	Standard    = Tuning{Name: "Standard", MIDIBases: [Strings]int{40, 45, 50, 55, 59, 64}}
	DropD       = Tuning{Name: "Drop D", MIDIBases: [Strings]int{38, 45, 50, 55, 59, 64}}
	DoubleDropD = Tuning{Name: "Double Drop D", MIDIBases: [Strings]int{38, 45, 50, 55, 59, 62}}
	DADGAD      = Tuning{Name: "DADGAD", MIDIBases: [Strings]int{38, 45, 50, 55, 57, 62}}
	OpenG       = Tuning{Name: "Open G", MIDIBases: [Strings]int{38, 43, 50, 55, 59, 62}}
	OpenD       = Tuning{Name: "Open D", MIDIBases: [Strings]int{38, 45, 50, 54, 57, 62}}
)

// Tunings lists the built-in tunings in menu order.
var Tunings = []Tuning{Standard, DropD, DoubleDropD, DADGAD, OpenG, OpenD}

// TuningByName finds a built-in tuning.
func TuningByName(name string) (Tuning, bool) {
	i := slices.IndexFunc(Tunings, func(t Tuning) bool { return t.Name == name })
	if i < 0 {
		return Tuning{}, false
	}
	return Tunings[i], true
}

// ScaleType is a named set of intervals above a root.
type ScaleType struct {
	Name      string
	Intervals []int
}

// ScaleTypes lists the scales offered by the explorer.
var ScaleTypes = []ScaleType{
	{"Major", []int{0, 2, 4, 5, 7, 9, 11}},
	{"Minor", []int{0, 2, 3, 5, 7, 8, 10}},
	{"Major Pentatonic", []int{0, 2, 4, 7, 9}},
	{"Minor Pentatonic", []int{0, 3, 5, 7, 10}},
	{"Blues", []int{0, 3, 5, 6, 7, 10}},
}

// ScaleNotes returns the pitch classes of the named scale on root.
func ScaleNotes(root, scale string) ([]string, error) {
	r, ok := chord.NoteIndex(root)
	if !ok {
		return nil, fmt.Errorf("fretboard: unknown root %q", root)
	}
	i := slices.IndexFunc(ScaleTypes, func(s ScaleType) bool { return s.Name == scale })
	if i < 0 {
		return nil, fmt.Errorf("fretboard: unknown scale %q", scale)
	}
	out := make([]string, len(ScaleTypes[i].Intervals))
	for j, iv := range ScaleTypes[i].Intervals {
		out[j] = pitch.NoteNames[(r+iv)%12]
	}
	return out, nil
}
