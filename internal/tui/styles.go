package tui

import (
	"github.com/charmbracelet/lipgloss"

	"coauthor/internal/event"
)

var kindStyles = map[event.Kind]lipgloss.Style{
	event.SystemInitialize: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	event.TextInsert:       lipgloss.NewStyle().Foreground(lipgloss.Color("51")),
	event.TextDelete:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	event.CursorForward:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	event.CursorBackward:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	event.CursorSelect:     lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	event.SuggestionGet:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
	event.SuggestionOpen:   lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	event.SuggestionReopen: lipgloss.NewStyle().Foreground(lipgloss.Color("227")),
	event.SuggestionUp:     lipgloss.NewStyle().Foreground(lipgloss.Color("87")),
	event.SuggestionDown:   lipgloss.NewStyle().Foreground(lipgloss.Color("87")),
	event.SuggestionHover:  lipgloss.NewStyle().Foreground(lipgloss.Color("87")),
	event.SuggestionSelect: lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true),
	event.SuggestionClose:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	event.SuggestionFail:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

var (
	defaultKindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("237"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	cursorStyle = lipgloss.NewStyle().Reverse(true)

	selectionStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("24"))

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("226"))
)

// KindStyle returns the display style of an event kind.
func KindStyle(k event.Kind) lipgloss.Style {
	if s, ok := kindStyles[k]; ok {
		return s
	}
	return defaultKindStyle
}
