package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/chordcoord/internal/metronome"
	"github.com/MrWong99/chordcoord/pkg/audio"
)

// BeatSource is the part of [metronome.Scheduler] the metronome view drives.
type BeatSource interface {
	Start(ctx context.Context) error
	Stop()
	SetBPM(ctx context.Context, bpm int) error
	BPM() int
	State() audio.RunState
	Subscribe(buffer int) (<-chan metronome.Event, func())
}

// TempoStep is the bpm change per +/- key press.
const TempoStep = 5

// BeatMsg carries one visual beat notification into the program.
type BeatMsg metronome.Event

type beatsClosedMsg struct{}

// Metronome is the bubbletea model of the metronome screen.
type Metronome struct {
	src    BeatSource
	ch     <-chan metronome.Event
	cancel func()

	last     metronome.Event
	hasBeat  bool
	err      error
	quitting bool
}

// NewMetronome subscribes to src. The scheduler is stopped when the program
// quits.
func NewMetronome(src BeatSource) *Metronome {
	ch, cancel := src.Subscribe(16)
	return &Metronome{src: src, ch: ch, cancel: cancel}
}

func listenBeats(ch <-chan metronome.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return beatsClosedMsg{}
		}
		return BeatMsg(e)
	}
}

// Init implements [tea.Model].
func (m *Metronome) Init() tea.Cmd { return listenBeats(m.ch) }

// Update implements [tea.Model].
func (m *Metronome) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = nil
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.src.Stop()
			m.cancel()
			return m, tea.Quit
		case " ", "p":
			if m.src.State() == audio.Running {
				m.src.Stop()
				m.hasBeat = false
			} else if err := m.src.Start(ctx); err != nil {
				slog.Warn("tui: metronome start failed", "err", err)
				m.err = err
			}
		case "+", "=", "up":
			m.setBPM(ctx, m.src.BPM()+TempoStep)
		case "-", "_", "down":
			m.setBPM(ctx, m.src.BPM()-TempoStep)
		}

	case BeatMsg:
		m.last, m.hasBeat = metronome.Event(msg), true
		return m, listenBeats(m.ch)

	case beatsClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Metronome) setBPM(ctx context.Context, bpm int) {
	if err := m.src.SetBPM(ctx, bpm); err != nil {
		m.err = err
	}
}

// View implements [tea.Model].
func (m *Metronome) View() string {
	if m.quitting {
		return ""
	}

	state := "STOP"
	if m.src.State() == audio.Running {
		state = "PLAY"
	}

	var body strings.Builder
	body.WriteString(headerStyle.Render(fmt.Sprintf("chordcoord metronome  %s  %3d bpm", state, m.src.BPM())))
	body.WriteString("\n\n")

	current := -1
	if m.hasBeat {
		current = m.last.BeatIndex % metronome.BeatsPerBar
	}
	cells := make([]string, metronome.BeatsPerBar)
	for i := range cells {
		switch {
		case i == current && i == 0:
			cells[i] = accentStyle.Render("●")
		case i == current:
			cells[i] = inTuneStyle.Render("●")
		default:
			cells[i] = dimStyle.Render("○")
		}
	}
	body.WriteString(strings.Join(cells, " ") + "\n")
	if m.hasBeat {
		body.WriteString(dimStyle.Render(fmt.Sprintf("beat %d at %.3fs", m.last.BeatIndex, m.last.AudioTime)) + "\n")
	}
	if m.err != nil {
		body.WriteString(offStyle.Render(m.err.Error()) + "\n")
	}

	help := dimStyle.Render("space:start/stop  +/-:tempo  q:quit")
	return lipgloss.JoinVertical(lipgloss.Left, boxStyle.Render(body.String()), help)
}
