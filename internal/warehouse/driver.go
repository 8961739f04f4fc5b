package warehouse

import (
	"context"

	"github.com/joacominatel/bqpipe/internal/frame"
)

// Driver defines the operations bqpipe delegates to a warehouse SDK.
// All implementations must be safe for concurrent use after Connect.
type Driver interface {
	// Connect establishes the client connection.
	Connect(ctx context.Context) error

	// Close releases the client connection.
	Close() error

	// Ping checks if the connection is alive.
	Ping(ctx context.Context) error

	// Name returns the warehouse kind, e.g. "bigquery".
	Name() string

	// Location returns the project or database the driver is bound to.
	Location() string

	// ListDatasets returns dataset (BigQuery) or schema (Snowflake, Postgres) names.
	ListDatasets(ctx context.Context) ([]string, error)

	// ListTables returns all table names in a dataset.
	ListTables(ctx context.Context, dataset string) ([]string, error)

	// GetSchema returns the columns of a table. It wraps ErrNotFound when the
	// table does not exist.
	GetSchema(ctx context.Context, ref TableRef) (Schema, error)

	// TableExists reports whether the table exists.
	TableExists(ctx context.Context, ref TableRef) (bool, error)

	// CreateTable creates an empty table with the given schema.
	CreateTable(ctx context.Context, ref TableRef, schema Schema) error

	// Query runs a SQL statement and returns its full result.
	Query(ctx context.Context, sql string) (*frame.Frame, error)

	// FetchTable reads rows of a table.
	FetchTable(ctx context.Context, ref TableRef, opts FetchOptions) (*frame.Frame, error)

	// Load writes the frame into an existing table. Frame columns match
	// schema fields by name.
	Load(ctx context.Context, ref TableRef, f *frame.Frame, opts LoadOptions) (*LoadResult, error)
}

// SessionDriver is implemented by warehouses with a mutable session context.
type SessionDriver interface {
	Session(ctx context.Context) (*SessionInfo, error)
	UseDatabase(ctx context.Context, name string) error
	UseSchema(ctx context.Context, name string) error
	UseRole(ctx context.Context, name string) error
	UseWarehouse(ctx context.Context, name string) error
	ListDatabases(ctx context.Context) ([]string, error)
}

// RowCounter is implemented by warehouses that expose cheap row count estimates.
type RowCounter interface {
	RowCount(ctx context.Context, ref TableRef) (int64, error)
}
