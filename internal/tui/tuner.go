package tui

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/chordcoord/internal/fretboard"
	"github.com/MrWong99/chordcoord/internal/pitch"
)

// PitchSource is the part of [pitch.Detector] the tuner view reads.
type PitchSource interface {
	Subscribe(buffer int) (<-chan pitch.Estimate, func())
}

// ReferenceTones plays sustained reference notes. [*tone.Generator]
// satisfies it.
type ReferenceTones interface {
	PlayTone(ctx context.Context, hz float64, d time.Duration) error
	StopAll()
}

// EstimateMsg carries one detection result into the program.
type EstimateMsg pitch.Estimate

type sourceClosedMsg struct{}

// Tuner is the bubbletea model of the tuner screen.
type Tuner struct {
	ch     <-chan pitch.Estimate
	cancel func()
	tones  ReferenceTones
	tuning fretboard.Tuning

	current  pitch.Estimate
	note     pitch.Note
	hasNote  bool
	sounding int // string index of the reference tone, or -1
	err      error
	quitting bool
}

// TunerOption configures a [Tuner].
type TunerOption func(*Tuner)

// WithReferenceTones enables keys 1-6 to toggle open-string tones.
func WithReferenceTones(r ReferenceTones) TunerOption { return func(t *Tuner) { t.tones = r } }

// WithTuning sets the tuning used for reference tones and the string hint.
func WithTuning(tu fretboard.Tuning) TunerOption { return func(t *Tuner) { t.tuning = tu } }

// NewTuner subscribes to src. The subscription ends when the program quits.
func NewTuner(src PitchSource, opts ...TunerOption) *Tuner {
	ch, cancel := src.Subscribe(4)
	t := &Tuner{ch: ch, cancel: cancel, tuning: fretboard.Standard, sounding: -1}
	for _, o := range opts {
		o(t)
	}
	return t
}

func listenEstimates(ch <-chan pitch.Estimate) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return sourceClosedMsg{}
		}
		return EstimateMsg(e)
	}
}

// Init implements [tea.Model].
func (t *Tuner) Init() tea.Cmd { return listenEstimates(t.ch) }

// Update implements [tea.Model].
func (t *Tuner) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch k := msg.String(); k {
		case "q", "ctrl+c", "esc":
			return t, t.quit()
		case "1", "2", "3", "4", "5", "6":
			t.toggleString(int(k[0] - '1'))
		case "0", " ":
			if t.tones != nil {
				t.tones.StopAll()
			}
			t.sounding = -1
		}

	case EstimateMsg:
		t.current = pitch.Estimate(msg)
		t.hasNote = false
		if t.current.OK {
			t.note, t.hasNote = pitch.Identify(t.current.Hz)
		}
		return t, listenEstimates(t.ch)

	case sourceClosedMsg:
		return t, t.quit()
	}
	return t, nil
}

func (t *Tuner) quit() tea.Cmd {
	t.quitting = true
	t.cancel()
	if t.tones != nil {
		t.tones.StopAll()
	}
	return tea.Quit
}

func (t *Tuner) toggleString(i int) {
	if t.tones == nil {
		return
	}
	if err := t.tones.PlayTone(context.Background(), t.tuning.Hz(i), 0); err != nil {
		slog.Warn("tui: reference tone failed", "string", i, "err", err)
		t.err = err
		return
	}
	if t.sounding == i {
		t.sounding = -1
	} else {
		t.sounding = i
	}
}

// nearestString returns the open string closest in pitch to hz.
func (t *Tuner) nearestString(hz float64) int {
	best, dist := 0, math.Inf(1)
	for i, f := range t.tuning.OpenStringHz() {
		if d := math.Abs(1200 * math.Log2(hz/f)); d < dist {
			best, dist = i, d
		}
	}
	return best
}

// View implements [tea.Model].
func (t *Tuner) View() string {
	if t.quitting {
		return ""
	}

	var body strings.Builder
	header := headerStyle.Render("chordcoord tuner") + dimStyle.Render("  "+t.tuning.Name)
	body.WriteString(header + "\n\n")

	switch {
	case !t.hasNote:
		body.WriteString(dimStyle.Render("play a string…") + "\n\n")
	default:
		style := offStyle
		if math.Abs(t.note.Cents) <= InTuneCents {
			style = inTuneStyle
		}
		fmt.Fprintf(&body, "%s  %7.2f Hz  %+5.1f¢\n",
			noteStyle.Inherit(style).Render(t.note.Name), t.note.Hz, t.note.Cents)
		body.WriteString(style.Render(centsMeter(t.note.Cents)) + "\n")
		s := t.nearestString(t.note.Hz)
		fmt.Fprintf(&body, "%s\n", dimStyle.Render(fmt.Sprintf("nearest string %d (%s, %.2f Hz)",
			s+1, t.tuning.Labels()[s], t.tuning.Hz(s))))
	}

	if t.tones != nil {
		labels := t.tuning.Labels()
		cells := make([]string, len(labels))
		for i, l := range labels {
			cell := fmt.Sprintf("%d:%s", i+1, l)
			if i == t.sounding {
				cell = accentStyle.Render(cell)
			}
			cells[i] = cell
		}
		body.WriteString("\n" + strings.Join(cells, "  ") + "\n")
	}
	if t.err != nil {
		body.WriteString(offStyle.Render(t.err.Error()) + "\n")
	}

	help := "q:quit"
	if t.tones != nil {
		help = "1-6:reference tone  0:silence  " + help
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxStyle.Render(body.String()), dimStyle.Render(help))
}
