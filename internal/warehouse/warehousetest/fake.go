// Package warehousetest provides an in-memory warehouse.Driver for tests.
package warehousetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// Table is one stored table.
type Table struct {
	Schema warehouse.Schema
	Data   *frame.Frame
}

// Load records one Driver.Load call.
type Load struct {
	Ref  warehouse.TableRef
	Data *frame.Frame
	Opts warehouse.LoadOptions
}

// Driver is an in-memory warehouse. It implements warehouse.Driver,
// warehouse.SessionDriver and warehouse.RowCounter.
type Driver struct {
	mu sync.Mutex

	Kind      string
	Project   string
	Datasets  map[string]map[string]*Table
	Databases []string
	Info      warehouse.SessionInfo

	// QueryResult is returned by Query; QueryErr fails it.
	QueryResult *frame.Frame
	QueryErr    error
	ConnectErr  error
	LoadErr     error

	Connected bool
	Queries   []string
	Fetches   []warehouse.FetchOptions
	Loads     []Load
	Created   []warehouse.TableRef
	UseCalls  []string
}

var (
	_ warehouse.Driver        = (*Driver)(nil)
	_ warehouse.SessionDriver = (*Driver)(nil)
	_ warehouse.RowCounter    = (*Driver)(nil)
)

// New returns an empty fake named "fake".
func New() *Driver {
	return &Driver{Kind: "fake", Project: "demo", Datasets: map[string]map[string]*Table{}}
}

// AddTable stores a table with the given schema and optional data.
func (d *Driver) AddTable(ref warehouse.TableRef, schema warehouse.Schema, data *frame.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Datasets[ref.Dataset] == nil {
		d.Datasets[ref.Dataset] = map[string]*Table{}
	}
	if data == nil {
		data = emptyFrame(schema)
	}
	d.Datasets[ref.Dataset][ref.Table] = &Table{Schema: schema, Data: data}
}

// Table returns a stored table or nil.
func (d *Driver) Table(ref warehouse.TableRef) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table(ref)
}

func (d *Driver) table(ref warehouse.TableRef) *Table {
	return d.Datasets[ref.Dataset][ref.Table]
}

func (d *Driver) Connect(context.Context) error {
	if d.ConnectErr != nil {
		return d.ConnectErr
	}
	d.Connected = true
	return nil
}

func (d *Driver) Close() error {
	d.Connected = false
	return nil
}

func (d *Driver) Ping(context.Context) error { return nil }
func (d *Driver) Name() string               { return d.Kind }
func (d *Driver) Location() string           { return d.Project }

func (d *Driver) ListDatasets(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.Datasets))
	for name := range d.Datasets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (d *Driver) ListTables(_ context.Context, dataset string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tables, ok := d.Datasets[dataset]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", dataset, warehouse.ErrNotFound)
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (d *Driver) GetSchema(_ context.Context, ref warehouse.TableRef) (warehouse.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.table(ref)
	if t == nil {
		return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	return t.Schema, nil
}

func (d *Driver) TableExists(_ context.Context, ref warehouse.TableRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table(ref) != nil, nil
}

func (d *Driver) RowCount(_ context.Context, ref warehouse.TableRef) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.table(ref)
	if t == nil {
		return 0, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	return int64(t.Data.NumRows()), nil
}

func (d *Driver) CreateTable(_ context.Context, ref warehouse.TableRef, schema warehouse.Schema) error {
	d.mu.Lock()
	if d.table(ref) != nil {
		d.mu.Unlock()
		return fmt.Errorf("table %s already exists", ref)
	}
	d.Created = append(d.Created, ref)
	d.mu.Unlock()
	d.AddTable(ref, schema, nil)
	return nil
}

func (d *Driver) Query(_ context.Context, sql string) (*frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Queries = append(d.Queries, sql)
	if d.QueryErr != nil {
		return nil, d.QueryErr
	}
	if d.QueryResult == nil {
		return &frame.Frame{}, nil
	}
	return d.QueryResult, nil
}

// FetchTable applies Fields and Limit; Select and Where are recorded only.
func (d *Driver) FetchTable(_ context.Context, ref warehouse.TableRef, opts warehouse.FetchOptions) (*frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Fetches = append(d.Fetches, opts)
	t := d.table(ref)
	if t == nil {
		return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	out := t.Data
	if len(opts.Fields) > 0 {
		var err error
		if out, err = out.Select(opts.Fields...); err != nil {
			return nil, err
		}
	}
	if opts.Limit > 0 {
		out = out.Head(opts.Limit)
	}
	return out, nil
}

// Load appends rows matched by column name; truncate replaces them.
func (d *Driver) Load(_ context.Context, ref warehouse.TableRef, f *frame.Frame, opts warehouse.LoadOptions) (*warehouse.LoadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Loads = append(d.Loads, Load{Ref: ref, Data: f, Opts: opts})
	if d.LoadErr != nil {
		return nil, d.LoadErr
	}
	t := d.table(ref)
	if t == nil {
		return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	if opts.Disposition == warehouse.WriteTruncate {
		t.Data = emptyFrame(t.Schema)
	}
	for r := 0; r < f.NumRows(); r++ {
		row := make([]any, t.Data.NumCols())
		for i, c := range t.Data.Columns {
			if src := f.Column(c.Name); src != nil {
				row[i] = src.Values[r]
			}
		}
		if err := t.Data.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return &warehouse.LoadResult{Rows: int64(f.NumRows()), JobID: "fake_load_" + ref.Table}, nil
}

func (d *Driver) Session(context.Context) (*warehouse.SessionInfo, error) {
	info := d.Info
	return &info, nil
}

func (d *Driver) UseDatabase(_ context.Context, name string) error {
	return d.use("DATABASE", name, &d.Info.Database)
}

func (d *Driver) UseSchema(_ context.Context, name string) error {
	return d.use("SCHEMA", name, &d.Info.Schema)
}

func (d *Driver) UseRole(_ context.Context, name string) error {
	return d.use("ROLE", name, &d.Info.Role)
}

func (d *Driver) UseWarehouse(_ context.Context, name string) error {
	return d.use("WAREHOUSE", name, &d.Info.Warehouse)
}

func (d *Driver) use(kind, name string, field *string) error {
	if err := warehouse.ValidateIdentifier(name); err != nil {
		return err
	}
	d.UseCalls = append(d.UseCalls, kind+" "+strings.ToUpper(name))
	*field = strings.ToUpper(name)
	return nil
}

func (d *Driver) ListDatabases(context.Context) ([]string, error) {
	return d.Databases, nil
}

func emptyFrame(schema warehouse.Schema) *frame.Frame {
	f := &frame.Frame{}
	for _, field := range schema {
		f.Columns = append(f.Columns, &frame.Column{Name: field.Name, Kind: warehouse.KindForFieldType(field.Type)})
	}
	return f
}
