package results

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

type exportFormat string

const (
	exportCSV  exportFormat = "csv"
	exportJSON exportFormat = "json"
)

func (m Model) cellValue() (string, bool) {
	if m.result == nil || m.cursorY < 0 || m.cursorY >= len(m.cells) {
		return "", false
	}
	row := m.cells[m.cursorY]
	if m.colOffset < 0 || m.colOffset >= len(row) {
		return "", false
	}
	return row[m.colOffset], true
}

// --- Copy ---

// doCopyCell copies the cell of the selected row in the leftmost visible column.
func (m *Model) doCopyCell() {
	val, ok := m.cellValue()
	if !ok {
		m.statusMessage = "Nothing to copy"
		return
	}
	if err := clipboard.WriteAll(val); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	m.statusMessage = "Copied: " + truncateStatus(val, 40)
}

func (m *Model) doCopyRowJSON() {
	if m.result == nil || m.cursorY < 0 || m.cursorY >= len(m.cells) {
		m.statusMessage = "No row to copy"
		return
	}
	var b strings.Builder
	if err := m.result.Frame.Slice(m.cursorY, m.cursorY+1).WriteNDJSON(&b); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	if err := clipboard.WriteAll(strings.TrimSpace(b.String())); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	m.statusMessage = "Copied row as JSON"
}

// --- Export ---

func (m Model) exportCmd(format exportFormat) tea.Cmd {
	result := m.result
	if result == nil || result.Frame == nil {
		return nil
	}
	return func() tea.Msg {
		ts := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("bqpipe_export_%s.%s", ts, format)

		f, err := os.Create(filename)
		if err != nil {
			return StatusNotifyMsg{Message: "Export failed: " + err.Error()}
		}
		defer f.Close()

		if format == exportJSON {
			err = result.Frame.WriteJSON(f)
		} else {
			err = result.Frame.WriteCSV(f)
		}
		if err != nil {
			return StatusNotifyMsg{Message: "Export failed: " + err.Error()}
		}
		return StatusNotifyMsg{Message: fmt.Sprintf("Exported %d rows to %s", result.Frame.NumRows(), filename)}
	}
}

func truncateStatus(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
