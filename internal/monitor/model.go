// Package monitor is the terminal view of the kiln status block.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
)

// historyLen is how many PV readings the trend line keeps.
const historyLen = 60

var sparks = []rune("▁▂▃▄▅▆▇█")

// Source yields the live status; service.MonitoringService satisfies it.
type Source interface {
	GetStatus(ctx context.Context) (models.LiveStatus, error)
}

type tickMsg time.Time

type statusMsg struct {
	status models.LiveStatus
	err    error
}

// Model is the bubbletea model.
type Model struct {
	src      Source
	interval time.Duration
	width    int

	status  models.LiveStatus
	err     error
	updated time.Time
	history []int32
	paused  bool
}

// NewModel creates a monitor refreshing every interval.
func NewModel(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{src: src, interval: interval}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), readOnce(m.src))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func readOnce(src Source) tea.Cmd {
	return func() tea.Msg {
		st, err := src.GetStatus(context.Background())
		return statusMsg{status: st, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
			if !m.paused {
				return m, tea.Batch(tick(m.interval), readOnce(m.src))
			}
		case "c":
			m.history = nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		if m.paused {
			return m, nil
		}
		return m, tea.Batch(tick(m.interval), readOnce(m.src))
	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.updated = time.Now()
			if msg.status.PV >= 0 {
				m.history = append(m.history, msg.status.PV)
				if len(m.history) > historyLen {
					m.history = m.history[len(m.history)-historyLen:]
				}
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("kiln monitor"))
	if m.paused {
		b.WriteString("  " + warnStyle.Render("[paused]"))
	}
	b.WriteString("\n")

	switch {
	case errors.Is(m.err, ipc.ErrStatusUnavailable):
		b.WriteString(critStyle.Render("kilnd is not running") + "\n")
	case m.err != nil:
		b.WriteString(critStyle.Render("status read failed: "+m.err.Error()) + "\n")
	case m.updated.IsZero():
		b.WriteString(helpStyle.Render("waiting for status...") + "\n")
	default:
		b.WriteString(panelStyle.Render(m.renderStatus()) + "\n")
	}

	b.WriteString(helpStyle.Render("q quit  p pause  c clear trend"))
	return b.String()
}

func (m Model) renderStatus() string {
	st := m.status
	seg := st.SegmentType.String()
	rows := []string{
		row("PV", formatTemp(st.PV)),
		row("SV", formatTemp(st.SV)),
		row("Segment", segmentStyle(st.Firing(), seg).Render(seg)+progress(st)),
	}
	if st.Firing() {
		rows = append(rows,
			row("Firing", fmt.Sprintf("#%d step %d", st.FiringID, st.StepID)),
			row("Elapsed", formatDuration(st.TotalElapsed())),
		)
	} else {
		rows = append(rows, row("Firing", helpStyle.Render("idle")))
	}
	if len(m.history) > 1 {
		rows = append(rows, row("Trend", heatStyle.Render(sparkline(m.history, m.trendWidth()))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) trendWidth() int {
	if m.width <= 0 {
		return historyLen
	}
	return max(min(historyLen, m.width-20), 1)
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func formatTemp(v int32) string {
	if v < 0 {
		return "--"
	}
	return fmt.Sprintf("%d°", v)
}

func formatDuration(sec int32) string {
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// progress shows elapsed/planned for timed segments.
func progress(st models.LiveStatus) string {
	if st.SegmentPlanned <= 0 {
		return ""
	}
	return fmt.Sprintf("  %s / %s", formatDuration(st.SegmentElapsed), formatDuration(st.SegmentPlanned))
}

// sparkline renders the last width values scaled between their min and max.
func sparkline(values []int32, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int(v-lo) * (len(sparks) - 1) / int(hi-lo)
		}
		out[i] = sparks[idx]
	}
	return string(out)
}
