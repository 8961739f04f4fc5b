// Package frame implements the in-memory tabular value that bqpipe moves
// between local files and warehouse tables.
package frame

import (
	"fmt"
	"strings"
	"time"
)

// Column is a named, typed column. A nil value is NULL.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NewColumn creates a column, normalizing values to the representation used
// for kind (int -> int64, float32 -> float64, ...).
func NewColumn(name string, kind Kind, values ...any) (*Column, error) {
	col := &Column{Name: name, Kind: kind, Values: make([]any, 0, len(values))}
	for i, v := range values {
		nv, err := normalize(kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		col.Values = append(col.Values, nv)
	}
	return col, nil
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// Format renders the value at row i for display. NULL renders as "NULL".
func (c *Column) Format(i int) string {
	return FormatValue(c.Kind, c.Values[i])
}

// Frame is an ordered set of equally sized columns.
type Frame struct {
	Columns []*Column
}

// New builds a frame. Column names must be unique ignoring case and all
// columns must have the same length.
func New(cols ...*Column) (*Frame, error) {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column name must not be empty")
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[key] = struct{}{}
		if c.Len() != cols[0].Len() {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, c.Len(), cols[0].Len())
		}
	}
	return &Frame{Columns: cols}, nil
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return f.Columns[0].Len()
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	return len(f.Columns)
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the column with the given name, matched
// case-insensitively, or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Column returns the named column or nil.
func (f *Frame) Column(name string) *Column {
	if i := f.Index(name); i >= 0 {
		return f.Columns[i]
	}
	return nil
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.Columns))
	for j, c := range f.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// AppendRow appends one value per column.
func (f *Frame) AppendRow(values ...any) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Columns))
	}
	normalized := make([]any, len(values))
	for i, v := range values {
		nv, err := normalize(f.Columns[i].Kind, v)
		if err != nil {
			return fmt.Errorf("column %q: %w", f.Columns[i].Name, err)
		}
		normalized[i] = nv
	}
	for i, v := range normalized {
		f.Columns[i].Values = append(f.Columns[i].Values, v)
	}
	return nil
}

// AddColumn appends a column of matching length.
func (f *Frame) AddColumn(col *Column) error {
	if f.Index(col.Name) >= 0 {
		return fmt.Errorf("column %q already exists", col.Name)
	}
	if len(f.Columns) > 0 && col.Len() != f.NumRows() {
		return fmt.Errorf("column %q has %d values, expected %d", col.Name, col.Len(), f.NumRows())
	}
	f.Columns = append(f.Columns, col)
	return nil
}

// AddConstColumn appends a column repeating value on every row.
func (f *Frame) AddConstColumn(name string, kind Kind, value any) error {
	v, err := normalize(kind, value)
	if err != nil {
		return fmt.Errorf("column %q: %w", name, err)
	}
	values := make([]any, f.NumRows())
	for i := range values {
		values[i] = v
	}
	return f.AddColumn(&Column{Name: name, Kind: kind, Values: values})
}

// Select returns a frame with the named columns in the given order. The
// result shares value storage with f.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c := f.Column(name)
		if c == nil {
			return nil, fmt.Errorf("column %q not found", name)
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	out := &Frame{}
	for _, c := range f.Columns {
		drop := false
		for _, n := range names {
			if strings.EqualFold(c.Name, n) {
				drop = true
				break
			}
		}
		if !drop {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n >= f.NumRows() {
		return f
	}
	out := &Frame{Columns: make([]*Column, len(f.Columns))}
	for i, c := range f.Columns {
		out.Columns[i] = &Column{Name: c.Name, Kind: c.Kind, Values: c.Values[:n]}
	}
	return out
}

// Slice returns rows [i, j), clamped to the frame. The result shares value
// storage with f.
func (f *Frame) Slice(i, j int) *Frame {
	i = min(max(i, 0), f.NumRows())
	j = min(max(j, i), f.NumRows())
	out := &Frame{Columns: make([]*Column, len(f.Columns))}
	for k, c := range f.Columns {
		out.Columns[k] = &Column{Name: c.Name, Kind: c.Kind, Values: c.Values[i:j]}
	}
	return out
}

func normalize(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case KindInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint8:
			return int64(x), nil
		}
	case KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
	case KindBool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case KindTimestamp:
		if x, ok := v.(time.Time); ok {
			return x, nil
		}
	case KindDate:
		if x, ok := v.(time.Time); ok {
			return truncateDate(x), nil
		}
	case KindBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s", v, v, kind)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
