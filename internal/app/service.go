package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

const (
	// DefaultDataset is used when neither the request nor the profile names one.
	DefaultDataset = "analytics"
	// DefaultAuditColumn is the reserved column stamped on every written row.
	DefaultAuditColumn = "created_at"

	auditDescription   = "Time the row was written by bqpipe."
	defaultConcurrency = 4
)

// SchemaTree represents the loaded dataset hierarchy for the explorer.
type SchemaTree struct {
	Location string
	Datasets []DatasetNode
}

// DatasetNode holds a dataset name and its tables.
type DatasetNode struct {
	Name   string
	Tables []string
}

// Options configures a Service.
type Options struct {
	DefaultDataset string
	// AuditColumn overrides DefaultAuditColumn.
	AuditColumn string
	// Concurrency bounds parallel metadata calls.
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service coordinates application-level operations between the CLI, the TUI
// and a warehouse driver.
type Service struct {
	driver         warehouse.Driver
	logger         *slog.Logger
	defaultDataset string
	auditColumn    string
	concurrency    int
	now            func() time.Time
}

// NewService creates a new application service.
func NewService(driver warehouse.Driver, opts Options) *Service {
	s := &Service{
		driver:         driver,
		logger:         opts.Logger,
		defaultDataset: strings.TrimSpace(opts.DefaultDataset),
		auditColumn:    strings.ToLower(strings.TrimSpace(opts.AuditColumn)),
		concurrency:    opts.Concurrency,
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.defaultDataset == "" {
		s.defaultDataset = DefaultDataset
	}
	if s.auditColumn == "" {
		s.auditColumn = DefaultAuditColumn
	}
	if s.concurrency < 1 {
		s.concurrency = defaultConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Connect establishes the warehouse connection.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.driver.Connect(ctx); err != nil {
		return &ErrConnection{Warehouse: s.driver.Name(), Cause: err}
	}
	s.logger.Debug("connected", "warehouse", s.driver.Name(), "location", s.driver.Location())
	return nil
}

// Disconnect closes the warehouse connection.
func (s *Service) Disconnect() error {
	return s.driver.Close()
}

// Warehouse returns the driver kind.
func (s *Service) Warehouse() string {
	return s.driver.Name()
}

// Location returns the project or database the service is bound to.
func (s *Service) Location() string {
	return s.driver.Location()
}

// DefaultDataset returns the dataset used for unqualified table names.
func (s *Service) DefaultDataset() string {
	return s.defaultDataset
}

// AuditColumn returns the reserved audit column name.
func (s *Service) AuditColumn() string {
	return s.auditColumn
}

// ResolveTable trims and validates a table reference, filling the default
// dataset. Names are lowercased unless acceptCapitals is set.
func (s *Service) ResolveTable(dataset, table string, acceptCapitals bool) (warehouse.TableRef, error) {
	dataset = strings.TrimSpace(dataset)
	table = strings.TrimSpace(table)
	if dataset == "" && strings.Contains(table, ".") {
		ref, err := warehouse.ParseTableRef(table, "")
		if err != nil {
			return warehouse.TableRef{}, err
		}
		dataset, table = ref.Dataset, ref.Table
	}
	if dataset == "" {
		dataset = s.defaultDataset
	}
	if !acceptCapitals {
		dataset = strings.ToLower(dataset)
		table = strings.ToLower(table)
	}

	ref := warehouse.TableRef{Dataset: dataset, Table: table}
	if err := warehouse.ValidateTableRef(ref); err != nil {
		return ref, err
	}
	return ref, nil
}

// ListDatasets returns datasets (BigQuery) or schemas (Snowflake, Postgres).
func (s *Service) ListDatasets(ctx context.Context) ([]string, error) {
	return s.driver.ListDatasets(ctx)
}

// ListTables returns the tables of a dataset.
func (s *Service) ListTables(ctx context.Context, dataset string) ([]string, error) {
	return s.driver.ListTables(ctx, strings.TrimSpace(dataset))
}

// LoadSchemaTree fetches datasets and their tables. Tables are listed
// concurrently.
func (s *Service) LoadSchemaTree(ctx context.Context) (*SchemaTree, error) {
	datasets, err := s.driver.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]DatasetNode, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ds := range datasets {
		g.Go(func() error {
			tables, err := s.driver.ListTables(gctx, ds)
			if err != nil {
				return fmt.Errorf("dataset %s: %w", ds, err)
			}
			nodes[i] = DatasetNode{Name: ds, Tables: tables}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SchemaTree{Location: s.driver.Location(), Datasets: nodes}, nil
}

// GetSchema returns the schema of a table.
func (s *Service) GetSchema(ctx context.Context, ref warehouse.TableRef) (warehouse.Schema, error) {
	return s.driver.GetSchema(ctx, ref)
}

// TableInfo returns the schema and, when the warehouse exposes one, the row
// count of a table.
func (s *Service) TableInfo(ctx context.Context, ref warehouse.TableRef) (*warehouse.TableInfo, error) {
	schema, err := s.driver.GetSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	info := &warehouse.TableInfo{Ref: ref, Schema: schema, RowCount: -1}
	if rc, ok := s.driver.(warehouse.RowCounter); ok {
		n, err := rc.RowCount(ctx, ref)
		if err != nil {
			s.logger.Debug("row count unavailable", "table", ref.String(), "error", err)
		} else {
			info.RowCount = n
		}
	}
	return info, nil
}

// TableExists reports whether the table exists.
func (s *Service) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	return s.driver.TableExists(ctx, ref)
}

// Query runs a SQL statement and returns its result.
func (s *Service) Query(ctx context.Context, sql string) (*frame.Frame, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, &ErrQuery{Query: sql, Cause: errors.New("empty query")}
	}
	f, err := s.driver.Query(ctx, sql)
	if err != nil {
		return nil, &ErrQuery{Query: sql, Cause: err}
	}
	return f, nil
}

// FetchTable reads rows of a table.
func (s *Service) FetchTable(ctx context.Context, ref warehouse.TableRef, opts warehouse.FetchOptions) (*frame.Frame, error) {
	f, err := s.driver.FetchTable(ctx, ref, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return f, nil
}

// CreateTable creates an empty table from a custom schema. The audit column
// is appended unless skipAudit is set; a TIMESTAMP audit field already in the
// schema, as printed by `metadata schema`, is accepted.
func (s *Service) CreateTable(ctx context.Context, ref warehouse.TableRef, schema warehouse.Schema, skipAudit bool) error {
	if len(schema) == 0 {
		return fmt.Errorf("%w: no columns", warehouse.ErrInvalidSchema)
	}
	if !skipAudit {
		var err error
		if schema, err = s.withoutAuditField(schema, s.auditColumn); err != nil {
			return err
		}
		if len(schema) == 0 {
			return fmt.Errorf("%w: no columns besides %q", warehouse.ErrInvalidSchema, s.auditColumn)
		}
		schema = append(schema, s.auditField())
	}

	exists, err := s.driver.TableExists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("table %s already exists", ref)
	}
	return s.driver.CreateTable(ctx, ref, schema)
}

// SessionChange lists the session settings to switch. Empty fields are kept.
type SessionChange struct {
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

// Session returns the session context of warehouses that have one.
func (s *Service) Session(ctx context.Context) (*warehouse.SessionInfo, error) {
	sd, err := s.sessionDriver()
	if err != nil {
		return nil, err
	}
	return sd.Session(ctx)
}

// UseSession applies the change and returns the resulting session.
func (s *Service) UseSession(ctx context.Context, c SessionChange) (*warehouse.SessionInfo, error) {
	sd, err := s.sessionDriver()
	if err != nil {
		return nil, err
	}

	steps := []struct {
		value string
		use   func(context.Context, string) error
	}{
		{c.Role, sd.UseRole},
		{c.Warehouse, sd.UseWarehouse},
		{c.Database, sd.UseDatabase},
		{c.Schema, sd.UseSchema},
	}
	for _, step := range steps {
		if step.value == "" {
			continue
		}
		if err := step.use(ctx, step.value); err != nil {
			return nil, err
		}
	}
	return sd.Session(ctx)
}

// ListDatabases lists databases of warehouses that have them.
func (s *Service) ListDatabases(ctx context.Context) ([]string, error) {
	sd, err := s.sessionDriver()
	if err != nil {
		return nil, err
	}
	return sd.ListDatabases(ctx)
}

func (s *Service) sessionDriver() (warehouse.SessionDriver, error) {
	sd, ok := s.driver.(warehouse.SessionDriver)
	if !ok {
		return nil, fmt.Errorf("session: %s: %w", s.driver.Name(), warehouse.ErrUnsupported)
	}
	return sd, nil
}

func (s *Service) auditField() warehouse.Field {
	return warehouse.Field{
		Name:        s.auditColumn,
		Type:        warehouse.TypeTimestamp,
		Mode:        warehouse.ModeRequired,
		Description: auditDescription,
	}
}

// withoutAuditField returns a copy of schema minus the audit column. The
// column may only be declared with the type bqpipe gives it.
func (s *Service) withoutAuditField(schema warehouse.Schema, audit string) (warehouse.Schema, error) {
	out := make(warehouse.Schema, 0, len(schema))
	for _, field := range schema {
		if !strings.EqualFold(field.Name, audit) {
			out = append(out, field)
			continue
		}
		if field.Type != warehouse.TypeTimestamp {
			return nil, fmt.Errorf("%w: %q is added by bqpipe as %s, schema declares %s",
				warehouse.ErrReservedColumn, audit, warehouse.TypeTimestamp, field.Type)
		}
	}
	return out, nil
}
