package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseDone
	PhaseFailed
)

// WorkerRow is one line of the worker table.
type WorkerRow struct {
	ID     int
	PID    int
	Status string // starting|ready|checking|crashed|exited
	Files  int
}

// Event replaces the dashboard state. A checking event without Lines
// keeps the previous report on screen.
type Event struct {
	Phase     Phase
	RequestID uint64
	Changed   int
	Errors    int
	Warnings  int
	Lines     []string // formatted diagnostics of the last report
	Workers   []WorkerRow
	Note      string
}

type watchModel struct {
	title     string
	events    <-chan Event
	onRebuild func()
	spinner   spinner.Model
	prog      progress.Model
	last      Event
	width     int
	maxLines  int
	done      bool
}

type eventMsg Event
type doneMsg struct{}

// NewWatchModel returns a Bubble Tea model that renders the state of a
// watch session. onRebuild, if set, is called when the user presses "r".
func NewWatchModel(title string, events <-chan Event, onRebuild func()) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76 // Default width

	return &watchModel{
		title:     title,
		events:    events,
		onRebuild: onRebuild,
		spinner:   sp,
		prog:      prog,
		width:     80,
		maxLines:  20,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		case "r":
			if m.onRebuild != nil {
				m.onRebuild()
			}
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		if msg.Height > 0 {
			m.maxLines = max(msg.Height-len(m.last.Workers)-10, 3)
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	switch m.last.Phase {
	case PhaseChecking:
		header = fmt.Sprintf("%s %s: checking request %d (%d changed)", m.spinner.View(), header, m.last.RequestID, m.last.Changed)
	case PhaseDone:
		header = fmt.Sprintf("%s: request %d, %d errors, %d warnings", header, m.last.RequestID, m.last.Errors, m.last.Warnings)
	case PhaseFailed:
		header = fmt.Sprintf("%s: request %d failed", header, m.last.RequestID)
	default:
		header = fmt.Sprintf("%s %s: waiting for changes", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, w := range m.last.Workers {
		status := styleStatus(w.Status).Render(fmt.Sprintf("%10s", w.Status))
		fmt.Fprintf(&b, "  %s worker %-3d pid %-8d %d files\n", status, w.ID, w.PID, w.Files)
	}
	if len(m.last.Workers) > 0 {
		b.WriteString("\n")
	}
	if m.last.Phase == PhaseChecking {
		b.WriteString(m.prog.View())
		b.WriteString("\n\n")
	}

	lineWidth := max(m.width-2, 20)
	shown := m.last.Lines
	if len(shown) > m.maxLines {
		shown = shown[:m.maxLines]
	}
	for _, line := range shown {
		b.WriteString(truncate(line, lineWidth))
		b.WriteString("\n")
	}
	if rest := len(m.last.Lines) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "... %d more\n", rest)
	}
	if m.last.Note != "" {
		b.WriteString(lipgloss.NewStyle().Faint(true).Render(m.last.Note))
		b.WriteString("\n")
	}
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("r: rebuild  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *watchModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *watchModel) applyEvent(ev Event) tea.Cmd {
	if ev.Phase == PhaseChecking && len(ev.Lines) == 0 {
		// keep the previous report visible while the next one runs
		ev.Lines = m.last.Lines
	}
	m.last = ev
	if ev.Phase != PhaseChecking || len(ev.Workers) == 0 {
		return nil
	}
	idle := 0
	for _, w := range ev.Workers {
		if w.Status != "checking" {
			idle++
		}
	}
	return m.prog.SetPercent(float64(idle) / float64(len(ev.Workers)))
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "ready":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "crashed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "checking", "starting":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
