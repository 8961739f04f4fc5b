package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/tui/explorer"
	"github.com/joacominatel/bqpipe/internal/warehouse"
	"github.com/joacominatel/bqpipe/internal/warehouse/warehousetest"
)

var events = warehouse.TableRef{Dataset: "analytics", Table: "events"}

func newTestModel(t *testing.T) (Model, *warehousetest.Driver) {
	t.Helper()
	d := warehousetest.New()
	data, err := frame.ReadCSV(strings.NewReader("account_id,score\n101,0.5\n102,\n"), frame.CSVOptions{})
	require.NoError(t, err)
	d.AddTable(events, warehouse.Schema{
		{Name: "account_id", Type: warehouse.TypeInteger, Mode: warehouse.ModeRequired},
		{Name: "score", Type: "FLOAT", Mode: warehouse.ModeNullable},
	}, data)

	svc := app.NewService(d, app.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, svc.Connect(context.Background()))

	m := NewModel(svc)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(Model), d
}

// run feeds msg to the model and resolves the returned command once.
func run(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	updated, cmd := m.Update(msg)
	if cmd == nil {
		return updated.(Model), nil
	}
	return updated.(Model), cmd()
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_LoadsTreeAndPreviews(t *testing.T) {
	m, d := newTestModel(t)

	msg := m.Init()()
	m, _ = run(t, m, msg)
	assert.Contains(t, m.View(), "analytics")

	m, msg = run(t, m, explorer.RequestPreviewMsg{Ref: events})
	m, _ = run(t, m, msg)
	require.NotNil(t, m.results.Result())
	assert.Equal(t, "analytics.events", m.results.Result().Title)
	assert.Equal(t, 2, m.results.Result().Frame.NumRows())
	require.Len(t, d.Fetches, 1)
	assert.Equal(t, PreviewRows, d.Fetches[0].Limit)

	m, msg = run(t, m, explorer.RequestColumnsMsg{Ref: events})
	_, ok := msg.(columnsLoadedMsg)
	require.True(t, ok)
	m, _ = run(t, m, msg)
	assert.Empty(t, m.statusbar.Message())
}

func TestModel_ColumnsErrorShowsInStatusBar(t *testing.T) {
	m, _ := newTestModel(t)
	missing := warehouse.TableRef{Dataset: "analytics", Table: "nope"}

	m, msg := run(t, m, explorer.RequestColumnsMsg{Ref: missing})
	m, _ = run(t, m, msg)
	assert.Contains(t, m.statusbar.Message(), "Failed to load columns")
}

func TestModel_QueryPrompt(t *testing.T) {
	m, d := newTestModel(t)
	d.QueryResult = &frame.Frame{}

	m, _ = run(t, m, runes("/"))
	assert.True(t, m.prompting)

	m.prompt.SetValue("SELECT 1")
	assert.Contains(t, m.View(), "SQL> ")

	m, msg := run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.prompting)
	assert.Equal(t, PaneResults, m.activePane)

	m, _ = run(t, m, msg)
	assert.Equal(t, []string{"SELECT 1"}, d.Queries)
	assert.Equal(t, "query", m.results.Result().Title)

	d.QueryErr = errors.New("syntax error at or near SELEC")
	m, _ = run(t, m, runes("/"))
	m.prompt.SetValue("SELEC 1")
	m, msg = run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = run(t, m, msg)
	assert.Contains(t, m.View(), "syntax error")
}

func TestModel_EscCancelsPrompt(t *testing.T) {
	m, d := newTestModel(t)

	m, _ = run(t, m, runes("/"))
	m, _ = run(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.prompting)
	assert.Empty(t, d.Queries)
}

func TestModel_PanesAndHelp(t *testing.T) {
	m, _ := newTestModel(t)
	assert.Equal(t, PaneExplorer, m.activePane)

	m, _ = run(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneResults, m.activePane)
	assert.True(t, m.results.Focused())

	m, _ = run(t, m, runes("?"))
	assert.Contains(t, m.View(), "Keyboard Shortcuts")
	m, _ = run(t, m, runes("x"))
	assert.False(t, m.showHelp)

	_, msg := run(t, m, runes("q"))
	assert.Equal(t, tea.Quit(), msg)
}
