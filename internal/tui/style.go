// Package tui renders the tuner and metronome as bubbletea programs for the
// command line.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noteStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	inTuneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

// InTuneCents is the deviation shown as in tune.
const InTuneCents = 5

// meterWidth is the number of cells on each side of the centre mark.
const meterWidth = 20

// centsMeter draws a needle from -50 to +50 cents.
func centsMeter(cents float64) string {
	pos := int(cents/50*meterWidth + 0.5*sign(cents))
	pos = max(-meterWidth, min(meterWidth, pos))

	var b strings.Builder
	for i := -meterWidth; i <= meterWidth; i++ {
		switch {
		case i == pos:
			b.WriteRune('▼')
		case i == 0:
			b.WriteRune('┃')
		default:
			b.WriteRune('─')
		}
	}
	return b.String()
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
