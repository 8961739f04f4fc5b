// Package tui implements the interactive browser started by `bqpipe browse`.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/tui/explorer"
	"github.com/joacominatel/bqpipe/internal/tui/results"
	"github.com/joacominatel/bqpipe/internal/tui/statusbar"
	"github.com/joacominatel/bqpipe/internal/tui/theme"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// PreviewRows is the number of rows fetched for a table preview.
const PreviewRows = 100

// Pane identifies a focusable area.
type Pane int

const (
	PaneExplorer Pane = iota
	PaneResults
)

func (p Pane) String() string {
	switch p {
	case PaneExplorer:
		return "explorer"
	case PaneResults:
		return "results"
	default:
		return "unknown"
	}
}

// Messages for async operations.
type (
	schemaLoadedMsg struct {
		tree *app.SchemaTree
		err  error
	}
	columnsLoadedMsg struct {
		ref  warehouse.TableRef
		info *warehouse.TableInfo
		err  error
	}
	resultLoadedMsg struct {
		result *results.Result
		err    error
	}
)

// Model is the top-level bubbletea model orchestrating all components.
type Model struct {
	service    *app.Service
	explorer   explorer.Model
	results    results.Model
	statusbar  statusbar.Model
	prompt     textinput.Model
	prompting  bool
	activePane Pane
	width      int
	height     int
	showHelp   bool
	timeout    time.Duration
}

// NewModel creates the top-level model for a connected service.
func NewModel(service *app.Service) Model {
	ti := textinput.New()
	ti.Prompt = "SQL> "
	ti.Placeholder = "SELECT ... (Enter to run, Esc to cancel)"
	ti.CharLimit = 4000

	m := Model{
		service:   service,
		explorer:  explorer.New(),
		results:   results.New(),
		statusbar: statusbar.New(service.Warehouse(), service.Location()),
		prompt:    ti,
		timeout:   2 * time.Minute,
	}
	m.explorer.SetLoading(true)
	m.setFocus(PaneExplorer)
	return m
}

// Init starts loading the dataset tree.
func (m Model) Init() tea.Cmd {
	return m.loadSchemaCmd()
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.prompting {
			return m.updatePrompt(msg)
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		return m.updateMain(msg)

	case schemaLoadedMsg:
		if msg.err != nil {
			m.explorer.SetLoading(false)
			m.statusbar.SetError("Failed to load datasets: " + msg.err.Error())
			return m, nil
		}
		m.explorer.SetTree(msg.tree)
		m.statusbar.SetMessage("")
		return m, nil

	case explorer.RequestColumnsMsg:
		m.statusbar.SetMessage("Loading columns of " + msg.Ref.String() + "...")
		return m, m.loadColumnsCmd(msg.Ref)

	case columnsLoadedMsg:
		if msg.err != nil {
			m.explorer.MarkUnloaded(msg.ref)
			m.statusbar.SetError("Failed to load columns: " + msg.err.Error())
			return m, nil
		}
		m.explorer.SetColumns(msg.info)
		m.statusbar.SetMessage("")
		return m, nil

	case explorer.RequestPreviewMsg:
		m.results.SetLoading(true)
		m.statusbar.SetMessage("Previewing " + msg.Ref.String() + "...")
		return m, m.previewCmd(msg.Ref)

	case resultLoadedMsg:
		if msg.err != nil {
			m.results.SetError(msg.err)
			m.statusbar.SetMessage("")
			return m, nil
		}
		m.results.SetResult(msg.result)
		m.statusbar.SetMessage("")
		return m, nil

	case results.StatusNotifyMsg:
		m.statusbar.SetMessage(msg.Message)
		return m, nil
	}

	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "/":
		m.prompting = true
		m.prompt.Focus()
		m.layout()
		return m, textinput.Blink
	case "tab", "shift+tab":
		if m.activePane == PaneExplorer {
			m.setFocus(PaneResults)
		} else {
			m.setFocus(PaneExplorer)
		}
		return m, nil
	case "r":
		m.explorer.SetLoading(true)
		return m, m.loadSchemaCmd()
	}

	var cmd tea.Cmd
	switch m.activePane {
	case PaneExplorer:
		m.explorer, cmd = m.explorer.Update(msg)
	case PaneResults:
		m.results, cmd = m.results.Update(msg)
		if s := m.results.TakeStatus(); s != "" {
			m.statusbar.SetMessage(s)
		}
	}
	return m, cmd
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompting = false
		m.prompt.Blur()
		m.layout()
		return m, nil
	case "enter":
		query := strings.TrimSpace(m.prompt.Value())
		if query == "" {
			return m, nil
		}
		m.prompting = false
		m.prompt.Blur()
		m.layout()
		m.results.SetLoading(true)
		m.setFocus(PaneResults)
		m.statusbar.SetMessage("Running query...")
		return m, m.queryCmd(query)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) setFocus(pane Pane) {
	m.activePane = pane
	m.explorer.SetFocused(pane == PaneExplorer)
	m.results.SetFocused(pane == PaneResults)
	m.statusbar.SetActivePane(pane.String())
}

func (m Model) explorerWidth() int {
	return min(max(m.width/4, 24), 40)
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	availHeight := m.height - 1 - 2 // status bar, borders
	if m.prompting {
		availHeight--
	}
	explorerWidth := m.explorerWidth()
	m.explorer.SetSize(explorerWidth-2, availHeight)
	m.results.SetSize(m.width-explorerWidth-2, availHeight)
	m.prompt.Width = m.width - 8
	m.statusbar.SetWidth(m.width)
}

// Async commands

func (m Model) loadSchemaCmd() tea.Cmd {
	service, timeout := m.service, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		tree, err := service.LoadSchemaTree(ctx)
		return schemaLoadedMsg{tree: tree, err: err}
	}
}

func (m Model) loadColumnsCmd(ref warehouse.TableRef) tea.Cmd {
	service, timeout := m.service, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		info, err := service.TableInfo(ctx, ref)
		return columnsLoadedMsg{ref: ref, info: info, err: err}
	}
}

func (m Model) previewCmd(ref warehouse.TableRef) tea.Cmd {
	service, timeout := m.service, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		f, err := service.FetchTable(ctx, ref, warehouse.FetchOptions{Limit: PreviewRows})
		if err != nil {
			return resultLoadedMsg{err: err}
		}
		return resultLoadedMsg{result: &results.Result{
			Title:    ref.String(),
			Frame:    f,
			Duration: time.Since(start),
		}}
	}
}

func (m Model) queryCmd(query string) tea.Cmd {
	service, timeout := m.service, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		f, err := service.Query(ctx, query)
		if err != nil {
			return resultLoadedMsg{err: err}
		}
		return resultLoadedMsg{result: &results.Result{
			Title:    "query",
			Frame:    f,
			Duration: time.Since(start),
		}}
	}
}

// View renders the entire application.
func (m Model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	explorerWidth := m.explorerWidth()
	availHeight := m.height - 1 - 2
	if m.prompting {
		availHeight--
	}

	explorerBorder, resultsBorder := theme.StyleBorder, theme.StyleBorder
	if m.activePane == PaneExplorer {
		explorerBorder = theme.StyleActiveBorder
	} else {
		resultsBorder = theme.StyleActiveBorder
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		explorerBorder.Width(explorerWidth-2).Height(availHeight).Render(m.explorer.View()),
		resultsBorder.Width(m.width-explorerWidth-2).Height(availHeight).Render(m.results.View()),
	)

	parts := []string{main}
	if m.prompting {
		parts = append(parts, " "+m.prompt.View())
	}
	parts = append(parts, m.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewHelp() string {
	section := lipgloss.NewStyle().Foreground(theme.ColorHighlight).Bold(true)
	key := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	line := func(k, desc string) string {
		return key.Render(fmt.Sprintf("  %-14s", k)) + theme.StyleMuted.Render(desc)
	}

	help := lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleTitle.Render("bqpipe browse - Keyboard Shortcuts"),
		"",
		section.Render("Global"),
		line("q / Ctrl+C", "Quit"),
		line("Tab", "Switch between panes"),
		line("/", "Run a query"),
		line("r", "Reload datasets"),
		line("?", "Toggle this help"),
		"",
		section.Render("Explorer"),
		line("↑/k  ↓/j", "Navigate up/down"),
		line("Enter/→/l", "Expand item (loads columns)"),
		line("←/h", "Collapse item or go to parent"),
		line("p", fmt.Sprintf("Preview first %d rows", PreviewRows)),
		"",
		section.Render("Results"),
		line("↑/k  ↓/j", "Select row"),
		line("←/h  →/l", "Scroll columns"),
		line("PgUp/PgDn", "Page up/down"),
		line("y / Y", "Copy cell / row as JSON"),
		line("e / E", "Export CSV / JSON"),
		"",
		theme.StyleMuted.Render("Press any key to close"),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, help)
}
