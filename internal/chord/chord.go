// Package chord identifies chords from sets of pitch classes and looks up
// the notes of named chords.
//
// Identification is exact: the interval set of the notes, measured from some
// candidate root, must equal one of the known chord types. Extra or missing
// tones never match. The first note of the input is taken to be the bass.
package chord

import (
	"slices"
	"strings"

	"github.com/MrWong99/chordcoord/internal/pitch"
)

// Messages returned in [Result.Message] when nothing is found.
const (
	MsgTooFewNotes  = "Select at least 3 unique notes."
	MsgInvalidNotes = "Invalid notes provided."
	MsgNoMatch      = "No specific chord found for these notes."
)

// MinUniqueNotes is the smallest number of distinct note names Identify
// accepts.
const MinUniqueNotes = 3

// Type is a chord quality and its intervals in semitones above the root.
type Type struct {
	Name      string
	Intervals []int
}

// Types lists the known chord qualities in match priority order.
var Types = []Type{
	{"Major", []int{0, 4, 7}},
	{"Minor", []int{0, 3, 7}},
	{"Diminished", []int{0, 3, 6}},
	{"Augmented", []int{0, 4, 8}},
	{"Sus2", []int{0, 2, 7}},
	{"Sus4", []int{0, 5, 7}},
	{"Major 7th", []int{0, 4, 7, 11}},
	{"Minor 7th", []int{0, 3, 7, 10}},
	{"Dominant 7th", []int{0, 4, 7, 10}},
	{"Diminished 7th", []int{0, 3, 6, 9}},
	{"Half-Diminished 7th", []int{0, 3, 6, 10}},
	{"Add9", []int{0, 2, 4, 7}},
	{"Minor Add9", []int{0, 2, 3, 7}},
	{"Major 6th", []int{0, 4, 7, 9}},
	{"Minor 6th", []int{0, 3, 7, 9}},
}

var flats = map[string]string{"Db": "C#", "Eb": "D#", "Gb": "F#", "Ab": "G#", "Bb": "A#"}

// NoteIndex returns the pitch class of a note name (0 = C). Sharps and the
// five common flats are accepted; anything else reports false.
func NoteIndex(name string) (int, bool) {
	if sharp, ok := flats[name]; ok {
		name = sharp
	}
	for i, n := range pitch.NoteNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Candidate is one chord the input notes spell.
type Candidate struct {
	Root  string `json:"root"`
	Chord string `json:"chord"`
	Name  string `json:"name"`
	Bass  string `json:"bass"`
}

// Result is the outcome of [Identify]. Primary and Alternatives are set only
// when Found is true; Message only when it is false.
type Result struct {
	Found        bool        `json:"found"`
	Primary      *Candidate  `json:"primary"`
	Alternatives []Candidate `json:"alternatives"`
	Message      string      `json:"message,omitempty"`
}

func notFound(msg string) Result { return Result{Message: msg} }

// Identify names the chord spelled by notes. Duplicates are allowed and
// notes[0] is the bass. A candidate whose root is the bass is preferred;
// otherwise the first candidate is returned as a slash chord ("E Minor/G").
func Identify(notes []string) Result {
	var unique []string
	for _, n := range notes {
		if !slices.Contains(unique, n) {
			unique = append(unique, n)
		}
	}
	if len(unique) < MinUniqueNotes {
		return notFound(MsgTooFewNotes)
	}

	// Distinct spellings of one pitch class ("C#", "Db") collapse here.
	var classes []int
	for _, n := range unique {
		idx, ok := NoteIndex(n)
		if !ok {
			return notFound(MsgInvalidNotes)
		}
		if !slices.Contains(classes, idx) {
			classes = append(classes, idx)
		}
	}

	bassIdx, _ := NoteIndex(notes[0])
	bass := pitch.NoteNames[bassIdx]

	var candidates []Candidate
	for _, root := range classes {
		intervals := intervalSet(root, classes)
		for _, t := range Types {
			if !slices.Equal(intervals, t.Intervals) {
				continue
			}
			rootName := pitch.NoteNames[root]
			candidates = append(candidates, Candidate{
				Root:  rootName,
				Chord: t.Name,
				Name:  rootName + " " + t.Name,
				Bass:  bass,
			})
		}
	}
	if len(candidates) == 0 {
		return notFound(MsgNoMatch)
	}

	var rootPos, others []Candidate
	for _, c := range candidates {
		if c.Root == bass {
			rootPos = append(rootPos, c)
		} else {
			others = append(others, c)
		}
	}

	if len(rootPos) > 0 {
		primary := rootPos[0]
		alts := append(slices.Clip(rootPos[1:]), others...)
		return Result{Found: true, Primary: &primary, Alternatives: nonNil(alts)}
	}
	primary := candidates[0]
	primary.Name += "/" + bass
	return Result{Found: true, Primary: &primary, Alternatives: nonNil(candidates[1:])}
}

func nonNil(c []Candidate) []Candidate {
	if c == nil {
		return []Candidate{}
	}
	return c
}

// intervalSet returns the sorted distinct intervals of classes above root.
func intervalSet(root int, classes []int) []int {
	out := make([]int, 0, len(classes))
	for _, c := range classes {
		iv := ((c-root)%12 + 12) % 12
		if !slices.Contains(out, iv) {
			out = append(out, iv)
		}
	}
	slices.Sort(out)
	return out
}

// Notes returns the pitch classes of a chord named "<root> <type>", e.g.
// "C Major" gives [C E G]. It returns nil for unknown names. Slash chords
// are not accepted.
func Notes(name string) []string {
	rootStr, typeStr, ok := strings.Cut(name, " ")
	if !ok {
		return nil
	}
	root, ok := NoteIndex(rootStr)
	if !ok {
		return nil
	}
	i := slices.IndexFunc(Types, func(t Type) bool { return t.Name == typeStr })
	if i < 0 {
		return nil
	}
	out := make([]string, len(Types[i].Intervals))
	for j, iv := range Types[i].Intervals {
		out[j] = pitch.NoteNames[(root+iv)%12]
	}
	return out
}

// Names returns every "<root> <type>" combination, roots in chromatic order.
func Names() []string {
	out := make([]string, 0, len(pitch.NoteNames)*len(Types))
	for _, root := range pitch.NoteNames {
		for _, t := range Types {
			out = append(out, root+" "+t.Name)
		}
	}
	return out
}
