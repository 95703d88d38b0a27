// Package tail provides a Bubble Tea live view for watching a single
// command's streamed output.
package tail

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/halyard-dev/halyard/internal/stream"
	"github.com/halyard-dev/halyard/internal/ui"
)

// eventMsg wraps one broadcaster event for the TUI.
type eventMsg stream.Event

// closedMsg signals the subscriber channel closed (terminal delivered).
type closedMsg struct{}

type tickMsg time.Time

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

const spinnerInterval = 100 * time.Millisecond

// Model is the Bubble Tea model for the live tail.
type Model struct {
	command string
	host    string
	sub     *stream.Subscriber

	lines        []string
	partial      string // trailing output with no newline yet
	spinnerFrame int
	terminal     *stream.Terminal
	done         bool
	width        int
	height       int
	startTime    time.Time
}

// NewModel creates a tail model consuming events from sub.
func NewModel(command, host string, sub *stream.Subscriber) Model {
	return Model{
		command:   command,
		host:      host,
		sub:       sub,
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForEvent(m.sub))
}

func tickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(sub *stream.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.C
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, tickCmd()

	case eventMsg:
		if msg.Chunk != nil {
			m.appendOutput(msg.Chunk.Data)
		}
		if msg.Terminal != nil {
			term := *msg.Terminal
			m.terminal = &term
			m.done = true
		}
		return m, waitForEvent(m.sub)

	case closedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// appendOutput splits incoming data into display lines, carrying an
// unterminated trailing line across chunks.
func (m *Model) appendOutput(data string) {
	text := m.partial + data
	parts := strings.Split(text, "\n")
	m.partial = parts[len(parts)-1]
	m.lines = append(m.lines, parts[:len(parts)-1]...)
}

func (m Model) View() string {
	headerStyle := lipgloss.NewStyle().Foreground(ui.ColorSecondary).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	var b strings.Builder
	b.WriteString(headerStyle.Render("$ " + m.command))
	if m.host != "" {
		b.WriteString(mutedStyle.Render("  on " + m.host))
	}
	b.WriteString("\n\n")

	// Show the tail that fits: header + status take 4 rows.
	visible := m.lines
	if m.partial != "" {
		visible = append(append([]string{}, m.lines...), m.partial)
	}
	max := m.height - 4
	if max > 0 && len(visible) > max {
		visible = visible[len(visible)-max:]
	}
	for _, line := range visible {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	if !m.done {
		spinnerStyle := lipgloss.NewStyle().Foreground(ui.ColorSecondary)
		elapsed := time.Since(m.startTime).Round(100 * time.Millisecond)
		return fmt.Sprintf("%s Running %s",
			spinnerStyle.Render(spinnerFrames[m.spinnerFrame]),
			lipgloss.NewStyle().Foreground(ui.ColorMuted).Render(elapsed.String()))
	}
	if m.terminal == nil {
		return lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("stream closed")
	}

	t := m.terminal
	d := time.Duration(t.DurationMs) * time.Millisecond
	switch {
	case t.Aborted:
		out := ui.RenderResult(0, false, false, true, d)
		if t.Message != "" {
			out += "\n" + lipgloss.NewStyle().Foreground(ui.ColorError).Render(t.Message)
		}
		return out
	case t.ExitCode == nil:
		if t.Message != "" {
			// Skipped as duplicate: the message carries the verdict.
			return ui.RenderDuplicate(t.Message, nil)
		}
		return ui.RenderResult(0, false, false, false, d)
	default:
		return ui.RenderResult(*t.ExitCode, true, *t.ExitCode != 0, false, d)
	}
}

// ExitCode extracts the final exit code for the process exit status.
// Returns -1 when unknown.
func (m Model) ExitCode() int {
	if m.terminal == nil || m.terminal.ExitCode == nil {
		return -1
	}
	return *m.terminal.ExitCode
}

// Run drives the tail TUI until the command completes or the user quits.
// Returns the final model for exit-code extraction.
func Run(command, host string, sub *stream.Subscriber) (Model, error) {
	program := tea.NewProgram(NewModel(command, host, sub))
	final, err := program.Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}
