package monitor

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorOrange = lipgloss.Color("#FFB86C")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorGray   = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	heatStyle  = lipgloss.NewStyle().Foreground(colorOrange)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)
)

// segmentStyle colours the segment label: heating segments orange, holds green, pauses yellow.
func segmentStyle(firing bool, label string) lipgloss.Style {
	if !firing {
		return helpStyle
	}
	switch label {
	case "AFAP", "Ramp":
		return heatStyle
	case "Hold":
		return okStyle
	default:
		return warnStyle
	}
}
