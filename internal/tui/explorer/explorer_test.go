package explorer

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(key(k))
	}
	return m, cmd
}

func newExplorer() Model {
	m := New()
	m.SetSize(60, 20)
	m.SetFocused(true)
	m.SetTree(&app.SchemaTree{
		Location: "demo",
		Datasets: []app.DatasetNode{
			{Name: "analytics", Tables: []string{"events", "users"}},
			{Name: "raw"},
		},
	})
	return m
}

var events = warehouse.TableRef{Dataset: "analytics", Table: "events"}

func TestExplorer_ExpandRequestsColumnsOnce(t *testing.T) {
	m := newExplorer()
	assert.Len(t, m.items, 3)

	m, cmd := press(t, m, "j", "enter")
	assert.Nil(t, cmd, "datasets are loaded with the tree")
	assert.Len(t, m.items, 5)

	m, cmd = press(t, m, "j", "enter")
	require.NotNil(t, cmd)
	assert.Equal(t, RequestColumnsMsg{Ref: events}, cmd())

	m.SetColumns(&warehouse.TableInfo{
		Ref: events,
		Schema: warehouse.Schema{
			{Name: "account_id", Type: warehouse.TypeInteger, Mode: warehouse.ModeRequired},
			{Name: "score", Type: "FLOAT", Mode: warehouse.ModeNullable},
		},
		RowCount: 12345,
	})
	assert.Len(t, m.items, 7)

	view := m.View()
	assert.Contains(t, view, "events")
	assert.Contains(t, view, "12,345")
	assert.Contains(t, view, "account_id")
	assert.Contains(t, view, "req")

	// collapse and expand again: columns are cached
	m, _ = press(t, m, "left")
	m, cmd = press(t, m, "enter")
	assert.Nil(t, cmd)
}

func TestExplorer_MarkUnloadedAllowsRetry(t *testing.T) {
	m := newExplorer()
	m, _ = press(t, m, "j", "enter", "j", "enter")
	m.MarkUnloaded(events)

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.Equal(t, RequestColumnsMsg{Ref: events}, cmd())
}

func TestExplorer_Preview(t *testing.T) {
	m := newExplorer()

	_, cmd := press(t, m, "p")
	assert.Nil(t, cmd, "no table under the cursor")

	m, _ = press(t, m, "j", "enter", "j", "j")
	ref, ok := m.SelectedTable()
	require.True(t, ok)
	assert.Equal(t, warehouse.TableRef{Dataset: "analytics", Table: "users"}, ref)

	_, cmd = press(t, m, "p")
	require.NotNil(t, cmd)
	assert.Equal(t, RequestPreviewMsg{Ref: ref}, cmd())
}

func TestExplorer_LeftMovesToParent(t *testing.T) {
	m := newExplorer()
	m, _ = press(t, m, "j", "enter", "j", "left")
	assert.Equal(t, 1, m.cursor)
}

func TestExplorer_IgnoresKeysWhenBlurred(t *testing.T) {
	m := newExplorer()
	m.SetFocused(false)
	m, _ = press(t, m, "j")
	assert.Equal(t, 0, m.cursor)
}
