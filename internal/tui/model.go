// Package tui is the terminal replay viewer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"coauthor/internal/event"
	"coauthor/internal/replay"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Config holds the static information displayed in the header.
type Config struct {
	Version   string
	SessionID string
	SpeedUp   float64
}

// Model is the Bubble Tea model for the replay viewer.
type Model struct {
	cfg      Config
	frames   <-chan Frame
	done     <-chan error
	cancel   context.CancelFunc
	frame    Frame
	started  bool
	finished bool
	err      error
	spin     int
}

// NewModel creates a viewer for a replay started with Play. cancel stops
// the replay when the viewer quits.
func NewModel(cfg Config, frames <-chan Frame, done <-chan error, cancel context.CancelFunc) Model {
	return Model{cfg: cfg, frames: frames, done: done, cancel: cancel}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// --- Messages ---

type frameMsg Frame
type doneMsg struct{ err error }
type tickMsg time.Time

// --- Bubble Tea interface ---

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForFrame(m.frames, m.done), tickEvery(100*time.Millisecond))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case frameMsg:
		m.frame = Frame(msg)
		m.started = true
		return m, waitForFrame(m.frames, m.done)

	case doneMsg:
		m.finished = true
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		return m, nil

	case tickMsg:
		m.spin = (m.spin + 1) % len(spinnerFrames)
		if m.finished {
			return m, nil
		}
		return m, tickEvery(100 * time.Millisecond)
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	sep := sepStyle.Render(strings.Repeat("─", 50))

	b.WriteString(sep + "\n")
	b.WriteString("  " + titleStyle.Render(fmt.Sprintf("coauthor replay %s", m.cfg.Version)) + "\n")
	b.WriteString(sep + "\n")

	b.WriteString("  " + labelStyle.Render("Session:") + "  " + valueStyle.Render(m.cfg.SessionID) + "\n")
	b.WriteString("  " + labelStyle.Render("Speed:") + "    " + valueStyle.Render(fmt.Sprintf("%gx", m.cfg.SpeedUp)) + "\n")
	b.WriteString(sep + "\n")

	if !m.started {
		b.WriteString("  " + dimStyle.Render("Waiting for the first event...") + "\n")
	} else {
		for _, line := range strings.Split(RenderDocument(m.frame.Text, m.frame.Selection), "\n") {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString(m.renderDropdown())
	}
	b.WriteString(sep + "\n")

	if m.started {
		p := m.frame.Progress
		kind := KindStyle(p.Event.Kind).Render(fmt.Sprintf("%-18s", p.Event.Kind))
		if p.Skipped {
			kind += " " + errorStyle.Render("skipped")
		}
		b.WriteString("  " + valueStyle.Render(ProgressLine(p)) + "\n")
		b.WriteString("  " + labelStyle.Render("Last:") + " " + kind + "\n")
		b.WriteString(sep + "\n")
	}

	switch {
	case m.err != nil:
		b.WriteString("  " + errorStyle.Render("Replay failed: "+m.err.Error()) + "\n")
	case m.finished:
		b.WriteString("  " + titleStyle.Render("Replay finished") + "\n")
	}
	b.WriteString("  " + footerStyle.Render("q: quit") + "\n")

	return b.String()
}

func (m Model) renderDropdown() string {
	d := m.frame.Dropdown
	var b strings.Builder
	if d.Loading {
		b.WriteString("  " + dimStyle.Render(spinnerFrames[m.spin]+" loading suggestions") + "\n")
	}
	if !d.Visible {
		return b.String()
	}
	for i, s := range d.Items {
		text := s.Trimmed
		if text == "" {
			text = strings.TrimSpace(s.Original)
		}
		line := fmt.Sprintf(" %d. %s ", i+1, text)
		if i == d.Highlighted {
			b.WriteString("  " + highlightStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + itemStyle.Render(line) + "\n")
		}
	}
	return b.String()
}

// RenderDocument draws text with the cursor shown as a reversed cell and
// the selection highlighted.
func RenderDocument(text string, sel event.Range) string {
	runes := []rune(text)
	start := max(0, min(sel.Index, len(runes)))
	end := max(start, min(sel.Index+sel.Length, len(runes)))

	var b strings.Builder
	b.WriteString(string(runes[:start]))
	switch {
	case end > start:
		b.WriteString(selectionStyle.Render(string(runes[start:end])))
		b.WriteString(string(runes[end:]))
	case start < len(runes) && runes[start] != '\n':
		b.WriteString(cursorStyle.Render(string(runes[start])))
		b.WriteString(string(runes[start+1:]))
	default:
		b.WriteString(cursorStyle.Render(" "))
		b.WriteString(string(runes[start:]))
	}
	return b.String()
}

// ProgressLine summarizes replay progress.
func ProgressLine(p replay.Progress) string {
	return fmt.Sprintf("log %d/%d  time %s/%s  queries %d/%d  selections %d/%d",
		p.Index+1, p.Count,
		formatClock(p.Elapsed), formatClock(p.TotalTime),
		p.Queries, p.TotalQueries,
		p.Selections, p.TotalSelections)
}

func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// --- Commands ---

func waitForFrame(frames <-chan Frame, done <-chan error) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return doneMsg{err: <-done}
		}
		return frameMsg(f)
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
