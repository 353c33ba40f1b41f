package pitch

import (
	"math"
	"strconv"
)

// NoteNames lists the twelve pitch classes using sharps, starting at C.
var NoteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note describes the equal-tempered note nearest to a frequency, referenced
// to A4 = 440 Hz.
type Note struct {
	Name      string  `json:"note"` // e.g. "A2"
	Hz        float64 `json:"hz"`
	PerfectHz float64 `json:"perfect_hz"`
	Cents     float64 `json:"cents"` // deviation from PerfectHz, in [-50, 50]
	Octave    int     `json:"octave"`
	MIDI      int     `json:"midi"`
}

// Identify names the note nearest to hz. It reports false for hz <= 0 or
// non-finite input.
func Identify(hz float64) (Note, bool) {
	if hz <= 0 || math.IsInf(hz, 0) || math.IsNaN(hz) {
		return Note{}, false
	}
	exact := 12*math.Log2(hz/440) + 69
	midi := int(math.RoundToEven(exact))

	pc := ((midi % 12) + 12) % 12
	octave := floorDiv(midi, 12) - 1

	return Note{
		Name:      NoteNames[pc] + strconv.Itoa(octave),
		Hz:        hz,
		PerfectHz: MIDIToHz(midi),
		Cents:     (exact - float64(midi)) * 100,
		Octave:    octave,
		MIDI:      midi,
	}, true
}

// MIDIToHz returns the equal-tempered frequency of a MIDI note number.
func MIDIToHz(midi int) float64 {
	return 440 * math.Pow(2, float64(midi-69)/12)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
