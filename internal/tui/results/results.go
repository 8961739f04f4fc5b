package results

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/tui/theme"
)

const maxColWidth = 40

// Result is a frame shown in the pane with where it came from.
type Result struct {
	Title    string
	Frame    *frame.Frame
	Duration time.Duration
}

// Model is the results pane. It shows table previews and query results.
type Model struct {
	result        *Result
	cells         [][]string
	err           error
	width         int
	height        int
	focused       bool
	loading       bool
	cursorY       int
	colOffset     int
	colWidths     []int
	statusMessage string
}

// New creates a new results model.
func New() Model {
	return Model{}
}

// SetSize updates the component dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused sets the focus state.
func (m *Model) SetFocused(f bool) {
	m.focused = f
}

// Focused returns whether the results pane has focus.
func (m Model) Focused() bool {
	return m.focused
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(l bool) {
	m.loading = l
}

// SetResult sets the frame to display.
func (m *Model) SetResult(r *Result) {
	m.result = r
	m.err = nil
	m.cursorY = 0
	m.colOffset = 0
	m.loading = false
	m.cells = nil
	if r != nil && r.Frame != nil {
		m.cells = make([][]string, r.Frame.NumRows())
		for i := range m.cells {
			row := make([]string, r.Frame.NumCols())
			for j, c := range r.Frame.Columns {
				row[j] = c.Format(i)
			}
			m.cells[i] = row
		}
	}
	m.calculateColumnWidths()
}

// SetError sets an error to display.
func (m *Model) SetError(err error) {
	m.err = err
	m.result = nil
	m.cells = nil
	m.cursorY = 0
	m.loading = false
}

// Result returns the displayed result, or nil.
func (m Model) Result() *Result {
	return m.result
}

// TakeStatus returns and clears the pending status message.
func (m *Model) TakeStatus() string {
	s := m.statusMessage
	m.statusMessage = ""
	return s
}

func (m *Model) calculateColumnWidths() {
	if m.result == nil || m.result.Frame == nil || m.result.Frame.NumCols() == 0 {
		m.colWidths = nil
		return
	}

	names := m.result.Frame.Names()
	m.colWidths = make([]int, len(names))
	for i, name := range names {
		m.colWidths[i] = lipgloss.Width(name)
	}
	for _, row := range m.cells {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > m.colWidths[i] {
				m.colWidths[i] = w
			}
		}
	}
	for i := range m.colWidths {
		m.colWidths[i] = min(max(m.colWidths[i], 1), maxColWidth)
	}
}

// Init returns the initial command (none).
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the results pane.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	rows := len(m.cells)
	switch key.String() {
	case "up", "k":
		if m.cursorY > 0 {
			m.cursorY--
		}
	case "down", "j":
		if m.cursorY < rows-1 {
			m.cursorY++
		}
	case "left", "h":
		if m.colOffset > 0 {
			m.colOffset--
		}
	case "right", "l":
		if m.colOffset < len(m.colWidths)-1 {
			m.colOffset++
		}
	case "pgup":
		m.cursorY = max(0, m.cursorY-m.pageSize())
	case "pgdown":
		m.cursorY = max(0, min(rows-1, m.cursorY+m.pageSize()))
	case "y":
		m.doCopyCell()
	case "Y":
		m.doCopyRowJSON()
	case "e":
		return m, m.exportCmd(exportCSV)
	case "E":
		return m, m.exportCmd(exportJSON)
	}

	return m, nil
}

func (m Model) pageSize() int {
	return max(1, m.height/2)
}

// View renders the results pane.
func (m Model) View() string {
	title := theme.StyleTitle.Render("Results")

	if m.loading {
		return title + "\n" + theme.StyleMuted.Render("  Running...")
	}

	if m.err != nil {
		return title + "\n" + theme.StyleError.Render("  Error: "+m.err.Error())
	}

	if m.result == nil {
		return title + "\n" + theme.StyleMuted.Render("  p: preview table │ /: run a query")
	}

	f := m.result.Frame
	stats := fmt.Sprintf("%s │ %s rows │ %s",
		m.result.Title, humanize.Comma(int64(f.NumRows())), m.result.Duration.Round(time.Millisecond))
	header := title + " " + theme.StyleMuted.Render(stats)

	if f.NumCols() == 0 {
		return header + "\n" + theme.StyleSuccess.Render("  Statement executed")
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(m.renderRow(f.Names(), true, false))
	b.WriteString("\n")
	b.WriteString(m.renderSeparator())

	visibleRows := max(1, m.height-4)
	start := 0
	if m.cursorY >= visibleRows {
		start = m.cursorY - visibleRows + 1
	}
	for i := start; i < len(m.cells) && i < start+visibleRows; i++ {
		b.WriteString("\n")
		b.WriteString(m.renderRow(m.cells[i], false, i == m.cursorY))
	}

	return b.String()
}

// visibleCols returns the column range that fits the width from colOffset.
func (m Model) visibleCols() (from, to int) {
	from = min(m.colOffset, len(m.colWidths))
	used := 2
	to = from
	for to < len(m.colWidths) {
		w := m.colWidths[to] + 3
		if to > from && m.width > 0 && used+w > m.width {
			break
		}
		used += w
		to++
	}
	return from, to
}

func (m Model) renderRow(cells []string, isHeader, selected bool) string {
	from, to := m.visibleCols()
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		width := m.colWidths[i]
		display := fit(cells[i], width)

		switch {
		case isHeader:
			display = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorPrimary).Render(display)
		case cells[i] == "NULL":
			display = theme.StyleNull.Render(display)
		}
		parts = append(parts, display)
	}

	line := "  " + strings.Join(parts, " │ ")
	if selected {
		return theme.StyleSelected.Render(">") + line[1:]
	}
	return line
}

func (m Model) renderSeparator() string {
	from, to := m.visibleCols()
	parts := make([]string, 0, to-from)
	for _, w := range m.colWidths[from:to] {
		parts = append(parts, strings.Repeat("─", w))
	}
	return "  " + lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Join(parts, "─┼─"))
}

// fit truncates or pads s to exactly width display cells.
func fit(s string, width int) string {
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes)) >= width {
			runes = runes[:len(runes)-1]
		}
		s = string(runes) + "…"
	}
	if pad := width - lipgloss.Width(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}
