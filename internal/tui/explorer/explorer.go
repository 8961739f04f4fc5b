package explorer

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/tui/theme"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// NodeKind identifies the type of a tree node.
type NodeKind int

const (
	NodeLocation NodeKind = iota
	NodeDataset
	NodeTable
	NodeColumn
)

// TreeNode represents a single node in the schema tree.
type TreeNode struct {
	Kind     NodeKind
	Name     string
	Children []*TreeNode
	Expanded bool
	Loaded   bool // whether children have been fetched

	Dataset  string          // parent dataset (tables, columns)
	Table    string          // parent table (columns)
	Field    warehouse.Field // column definition
	RowCount int64           // -1 when unknown
}

// flatItem is a visible item in the flattened tree view.
type flatItem struct {
	node  *TreeNode
	depth int
}

// Model is the explorer (schema tree) component.
type Model struct {
	tree    *TreeNode
	items   []flatItem
	cursor  int
	width   int
	height  int
	focused bool
	loading bool
}

// New creates a new explorer model.
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

// Focused returns whether the explorer has focus.
func (m Model) Focused() bool {
	return m.focused
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(l bool) {
	m.loading = l
}

// RequestColumnsMsg is emitted when a table is expanded for the first time.
type RequestColumnsMsg struct {
	Ref warehouse.TableRef
}

// RequestPreviewMsg asks for the first rows of a table.
type RequestPreviewMsg struct {
	Ref warehouse.TableRef
}

// SetTree populates the explorer from a schema tree.
func (m *Model) SetTree(tree *app.SchemaTree) {
	root := &TreeNode{
		Kind:     NodeLocation,
		Name:     tree.Location,
		Expanded: true,
		Loaded:   true,
	}

	for _, ds := range tree.Datasets {
		dsNode := &TreeNode{Kind: NodeDataset, Name: ds.Name, Loaded: true}
		for _, t := range ds.Tables {
			dsNode.Children = append(dsNode.Children, &TreeNode{
				Kind:     NodeTable,
				Name:     t,
				Dataset:  ds.Name,
				RowCount: -1,
			})
		}
		root.Children = append(root.Children, dsNode)
	}

	m.tree = root
	m.cursor = 0
	m.flatten()
	m.loading = false
}

// SetColumns adds column nodes to a table node.
func (m *Model) SetColumns(info *warehouse.TableInfo) {
	m.visitTable(info.Ref, func(node *TreeNode) {
		node.Children = nil
		for _, f := range info.Schema {
			node.Children = append(node.Children, &TreeNode{
				Kind:    NodeColumn,
				Name:    f.Name,
				Dataset: info.Ref.Dataset,
				Table:   info.Ref.Table,
				Field:   f,
			})
		}
		node.RowCount = info.RowCount
		node.Loaded = true
	})
	m.flatten()
}

// MarkUnloaded lets a failed column load be retried on the next expand.
func (m *Model) MarkUnloaded(ref warehouse.TableRef) {
	m.visitTable(ref, func(node *TreeNode) {
		node.Expanded = false
		node.Loaded = false
	})
	m.flatten()
}

func (m *Model) visitTable(ref warehouse.TableRef, fn func(*TreeNode)) {
	if m.tree == nil {
		return
	}
	for _, ds := range m.tree.Children {
		if ds.Name != ref.Dataset {
			continue
		}
		for _, t := range ds.Children {
			if t.Name == ref.Table {
				fn(t)
				return
			}
		}
	}
}

// SelectedTable returns the table under the cursor, or the table of the
// column under the cursor.
func (m Model) SelectedTable() (warehouse.TableRef, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return warehouse.TableRef{}, false
	}
	node := m.items[m.cursor].node
	switch node.Kind {
	case NodeTable:
		return warehouse.TableRef{Dataset: node.Dataset, Table: node.Name}, true
	case NodeColumn:
		return warehouse.TableRef{Dataset: node.Dataset, Table: node.Table}, true
	}
	return warehouse.TableRef{}, false
}

// flatten rebuilds the flat item list from the tree.
func (m *Model) flatten() {
	m.items = nil
	if m.tree != nil {
		m.flattenNode(m.tree, 0)
	}
	if m.cursor >= len(m.items) {
		m.cursor = max(0, len(m.items)-1)
	}
}

func (m *Model) flattenNode(node *TreeNode, depth int) {
	m.items = append(m.items, flatItem{node: node, depth: depth})
	if node.Expanded {
		for _, child := range node.Children {
			m.flattenNode(child, depth+1)
		}
	}
}

// Init returns the initial command (none).
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the explorer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = max(0, len(m.items)-1)
		case "enter", "right", "l":
			return m, m.toggleExpand()
		case "left", "h":
			m.collapse()
		case "p":
			if ref, ok := m.SelectedTable(); ok {
				return m, func() tea.Msg { return RequestPreviewMsg{Ref: ref} }
			}
		}
	}

	return m, nil
}

func (m *Model) toggleExpand() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	node := m.items[m.cursor].node

	if node.Kind == NodeColumn {
		return nil
	}

	node.Expanded = !node.Expanded
	m.flatten()

	if node.Expanded && node.Kind == NodeTable && !node.Loaded {
		ref := warehouse.TableRef{Dataset: node.Dataset, Table: node.Name}
		return func() tea.Msg { return RequestColumnsMsg{Ref: ref} }
	}
	return nil
}

// collapse closes the node under the cursor, or moves to its parent.
func (m *Model) collapse() {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return
	}
	item := m.items[m.cursor]
	if item.node.Expanded {
		item.node.Expanded = false
		m.flatten()
		return
	}
	for i := m.cursor - 1; i >= 0; i-- {
		if m.items[i].depth < item.depth {
			m.cursor = i
			return
		}
	}
}

// View renders the explorer.
func (m Model) View() string {
	title := theme.StyleTitle.Render("Explorer")

	if m.loading {
		return title + "\n" + theme.StyleMuted.Render("  Loading datasets...")
	}

	if m.tree == nil {
		return title + "\n" + theme.StyleMuted.Render("  Nothing loaded")
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")

	visibleHeight := m.height - 2
	if visibleHeight < 1 {
		visibleHeight = 1
	}

	scrollOffset := 0
	if m.cursor >= visibleHeight {
		scrollOffset = m.cursor - visibleHeight + 1
	}

	for i := scrollOffset; i < len(m.items) && i < scrollOffset+visibleHeight; i++ {
		b.WriteString(m.renderNode(m.items[i], i == m.cursor))
		if i < scrollOffset+visibleHeight-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m Model) renderNode(item flatItem, selected bool) string {
	node := item.node
	indent := strings.Repeat("  ", item.depth)

	icon := "▶ "
	if node.Expanded {
		icon = "▼ "
	}

	name := node.Name
	switch node.Kind {
	case NodeColumn:
		icon = "  "
		typ := string(node.Field.Type)
		if node.Field.Required() {
			typ += " " + theme.StyleRequired.Render("req")
		}
		name += " " + theme.StyleMuted.Render(typ)
	case NodeTable:
		if node.RowCount >= 0 {
			name += " " + theme.StyleMuted.Render(humanize.Comma(node.RowCount))
		}
	case NodeDataset:
		name += " " + theme.StyleMuted.Render("("+humanize.Comma(int64(len(node.Children)))+")")
	}

	line := indent + icon + name

	if m.width > 4 && lipgloss.Width(line) > m.width-2 {
		line = truncate(line, m.width-4) + ".."
	}

	if selected {
		return theme.StyleSelected.Render(line)
	}
	return line
}

func truncate(s string, width int) string {
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
