package warehouse

import (
	"fmt"
	"strings"
)

// TableRef names a table inside a dataset. For Snowflake and Postgres the
// dataset is the schema.
type TableRef struct {
	Dataset string
	Table   string
}

func (r TableRef) String() string {
	if r.Dataset == "" {
		return r.Table
	}
	return r.Dataset + "." + r.Table
}

// ParseTableRef splits "dataset.table". A bare table name gets defaultDataset.
func ParseTableRef(s, defaultDataset string) (TableRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TableRef{}, fmt.Errorf("%w: empty table name", ErrInvalidIdentifier)
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return TableRef{Dataset: defaultDataset, Table: parts[0]}, nil
	case 2:
		return TableRef{Dataset: parts[0], Table: parts[1]}, nil
	default:
		return TableRef{}, fmt.Errorf("%w: %q has more than two parts", ErrInvalidIdentifier, s)
	}
}

// Mode is a column's nullability.
type Mode string

const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
)

// Field describes one table column.
type Field struct {
	Name        string
	Type        FieldType
	Mode        Mode
	Description string
}

// Required reports whether the column rejects NULL.
func (f Field) Required() bool {
	return f.Mode == ModeRequired
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field returns the field matching name case-insensitively.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// InsertMode is how a write treats an existing table.
type InsertMode string

const (
	InsertAppend   InsertMode = "append"
	InsertTruncate InsertMode = "truncate"
)

// ParseInsertMode accepts "append" or "truncate" in any case.
func ParseInsertMode(s string) (InsertMode, error) {
	switch m := InsertMode(strings.ToLower(strings.TrimSpace(s))); m {
	case InsertAppend, InsertTruncate:
		return m, nil
	case "":
		return InsertAppend, nil
	default:
		return "", fmt.Errorf("%w: %q must be one of append, truncate", ErrInvalidInsertMode, s)
	}
}

// Disposition is the load job write disposition.
type Disposition string

const (
	WriteAppend   Disposition = "WRITE_APPEND"
	WriteTruncate Disposition = "WRITE_TRUNCATE"
	WriteEmpty    Disposition = "WRITE_EMPTY"
)

// LoadOptions configures Driver.Load.
type LoadOptions struct {
	Schema              Schema
	Disposition         Disposition
	IgnoreUnknownValues bool
	AllowJaggedRows     bool
	JobID               string
}

// LoadResult reports a finished load.
type LoadResult struct {
	Rows  int64
	JobID string
}

// FetchOptions configures Driver.FetchTable.
type FetchOptions struct {
	// Fields lists columns to select.
	Fields []string
	// Select is a raw select list, e.g. "* EXCEPT (created_at)". It wins over Fields.
	Select string
	// Where is a filter, with or without a leading WHERE.
	Where string
	// Limit caps returned rows; values below 1 return all rows.
	Limit int
}

// SessionInfo is the active session context of a warehouse connection.
type SessionInfo struct {
	User      string
	Role      string
	Warehouse string
	Database  string
	Schema    string
	Region    string
}

// TableInfo is the summary shown for a table.
type TableInfo struct {
	Ref      TableRef
	Schema   Schema
	RowCount int64 // -1 when the warehouse has no estimate
}
