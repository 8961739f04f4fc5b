package statusbar

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joacominatel/bqpipe/internal/tui/theme"
)

// Model is the status bar component.
type Model struct {
	width      int
	warehouse  string
	location   string
	activePane string
	message    string
	isError    bool
}

// New creates a new status bar model.
func New(warehouse, location string) Model {
	return Model{
		warehouse:  warehouse,
		location:   location,
		activePane: "explorer",
	}
}

// SetWidth updates the component width.
func (m *Model) SetWidth(w int) {
	m.width = w
}

// SetActivePane updates the displayed active pane name.
func (m *Model) SetActivePane(pane string) {
	m.activePane = pane
}

// SetMessage sets a status message; an empty one restores the key hints.
func (m *Model) SetMessage(msg string) {
	m.message = msg
	m.isError = false
}

// SetError shows an error message.
func (m *Model) SetError(msg string) {
	m.message = msg
	m.isError = true
}

// Message returns the current message.
func (m Model) Message() string {
	return m.message
}

// View renders the status bar.
func (m Model) View() string {
	style := theme.StyleStatusBar.Width(m.width)

	left := lipgloss.NewStyle().Foreground(theme.ColorSuccess).Render("●") +
		" " + m.warehouse + ":" + m.location + " │ " + m.activePane

	right := "p: Preview │ /: Query │ Tab: Switch pane │ ?: Help │ q: Quit"
	if m.message != "" {
		right = m.message
		if m.isError {
			right = theme.StyleError.Render(right)
		}
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return style.Render(left + strings.Repeat(" ", padding) + right)
}
