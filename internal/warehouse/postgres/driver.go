// Package postgres implements warehouse.Driver for PostgreSQL-compatible
// warehouses using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// Name is the warehouse kind served by this package.
const Name = "postgres"

// Driver implements warehouse.Driver for PostgreSQL.
type Driver struct {
	dsn    string
	logger *slog.Logger
	pool   *pgxpool.Pool
	dbName string
	newID  func() string
}

var (
	_ warehouse.Driver     = (*Driver)(nil)
	_ warehouse.RowCounter = (*Driver)(nil)
)

// New creates a new PostgreSQL driver for dsn.
func New(dsn string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{dsn: dsn, logger: logger.With("warehouse", Name), newID: uuid.NewString}
}

// Connect establishes a connection pool to PostgreSQL.
func (d *Driver) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(d.dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 5
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping: %w", err)
	}

	d.pool = pool
	d.dbName = cfg.ConnConfig.Database
	return nil
}

// Close closes the connection pool.
func (d *Driver) Close() error {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return nil
}

// Ping checks if the connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	if d.pool == nil {
		return warehouse.ErrNotConnected
	}
	return d.pool.Ping(ctx)
}

func (d *Driver) Name() string { return Name }

// Location returns the name of the connected database.
func (d *Driver) Location() string { return d.dbName }

// ListDatasets returns all user-created schemas.
func (d *Driver) ListDatasets(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, "list schemas", queryListSchemas)
}

// ListTables returns all table names in a schema.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]string, error) {
	tables, err := d.queryStrings(ctx, "list tables", queryListTables, schema)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		d.logger.Warn("schema has no tables", "schema", schema)
	}
	return tables, nil
}

// GetSchema returns column metadata for a table.
func (d *Driver) GetSchema(ctx context.Context, ref warehouse.TableRef) (warehouse.Schema, error) {
	if d.pool == nil {
		return nil, warehouse.ErrNotConnected
	}
	ref = resolve(ref)
	rows, err := d.pool.Query(ctx, queryGetColumns, ref.Dataset, ref.Table)
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	defer rows.Close()

	var schema warehouse.Schema
	for rows.Next() {
		var name, udt, nullable, comment string
		if err := rows.Scan(&name, &udt, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		mode := warehouse.ModeNullable
		if nullable == "NO" {
			mode = warehouse.ModeRequired
		}
		schema = append(schema, warehouse.Field{Name: name, Type: fieldType(udt), Mode: mode, Description: comment})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	return schema, nil
}

// TableExists reports whether the table exists.
func (d *Driver) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	if d.pool == nil {
		return false, warehouse.ErrNotConnected
	}
	ref = resolve(ref)
	var exists bool
	if err := d.pool.QueryRow(ctx, queryTableExists, ref.Dataset, ref.Table).Scan(&exists); err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}
	return exists, nil
}

// RowCount returns the approximate row count using pg_class statistics.
func (d *Driver) RowCount(ctx context.Context, ref warehouse.TableRef) (int64, error) {
	if d.pool == nil {
		return 0, warehouse.ErrNotConnected
	}
	ref = resolve(ref)
	var count int64
	err := d.pool.QueryRow(ctx, queryTableRowCount, ref.Table, ref.Dataset).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
		}
		return 0, fmt.Errorf("row count: %w", err)
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// CreateTable creates the table and its column comments in one transaction.
func (d *Driver) CreateTable(ctx context.Context, ref warehouse.TableRef, schema warehouse.Schema) error {
	if d.pool == nil {
		return warehouse.ErrNotConnected
	}
	ref = resolve(ref)
	stmts, err := createTableStatements(ref, schema)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			d.logger.Debug("creating table", "sql", stmt)
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	d.logger.Info("table created", "table", ref.String(), "columns", len(schema))
	return nil
}

// Query runs a SQL query and returns the results.
func (d *Driver) Query(ctx context.Context, query string) (*frame.Frame, error) {
	if d.pool == nil {
		return nil, warehouse.ErrNotConnected
	}
	d.logger.Debug("running query", "sql", query)

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]*frame.Column, len(fields))
	for i, f := range fields {
		cols[i] = &frame.Column{Name: f.Name, Kind: kindForOID(f.DataTypeOID)}
	}

	for r := 0; rows.Next(); r++ {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		for i, v := range values {
			fv, err := frameValue(cols[i].Kind, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, cols[i].Name, err)
			}
			cols[i].Values = append(cols[i].Values, fv)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return frame.New(cols...)
}

// FetchTable reads rows of a table.
func (d *Driver) FetchTable(ctx context.Context, ref warehouse.TableRef, opts warehouse.FetchOptions) (*frame.Frame, error) {
	query, err := warehouse.BuildSelect(warehouse.DoubleQuote, resolve(ref), opts)
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, query)
}

// Load copies the frame into the table inside one transaction. A truncate
// disposition empties the table first.
func (d *Driver) Load(ctx context.Context, ref warehouse.TableRef, f *frame.Frame, opts warehouse.LoadOptions) (*warehouse.LoadResult, error) {
	if d.pool == nil {
		return nil, warehouse.ErrNotConnected
	}
	ref = resolve(ref)
	jobID := opts.JobID
	if jobID == "" {
		jobID = "bqpipe_load_" + d.newID()
	}

	rows := make([][]any, f.NumRows())
	for i := range rows {
		rows[i] = f.Row(i)
	}

	var copied int64
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if opts.Disposition == warehouse.WriteTruncate {
			d.logger.Warn("truncating table", "table", ref.String(), "job_id", jobID)
			if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+quote(ref.Dataset, ref.Table)); err != nil {
				return fmt.Errorf("truncate: %w", err)
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{ref.Dataset, ref.Table}, f.Names(), pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		copied = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return &warehouse.LoadResult{Rows: copied, JobID: jobID}, nil
}

func (d *Driver) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	if d.pool == nil {
		return nil, warehouse.ErrNotConnected
	}
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return names, nil
}

func resolve(ref warehouse.TableRef) warehouse.TableRef {
	if ref.Dataset == "" {
		ref.Dataset = "public"
	}
	return ref
}
