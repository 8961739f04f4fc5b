// Package snowflake implements warehouse.Driver on top of gosnowflake and
// database/sql.
package snowflake

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/snowflakedb/gosnowflake"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// Name is the warehouse kind served by this package.
const Name = "snowflake"

const (
	applicationName = "bqpipe"

	// errObjectNotExist is Snowflake's "object does not exist or not authorized".
	errObjectNotExist = 2003

	insertBatchRows = 500
)

// Config holds the connection settings for one Snowflake account.
type Config struct {
	Account              string
	Auth                 string
	User                 string
	Password             string
	PrivateKeyPath       string
	PrivateKeyPassphrase string
	Database             string
	Schema               string
	Warehouse            string
	Role                 string
}

// sessionParams pin how bound values are read: timestamps arrive as UTC
// wall-clock values and binary values as hex strings.
var sessionParams = map[string]string{
	"TIMEZONE":            "UTC",
	"BINARY_INPUT_FORMAT": "HEX",
}

// Driver implements warehouse.Driver and warehouse.SessionDriver for
// Snowflake. The pool holds a single connection so USE statements apply to
// every later call.
type Driver struct {
	mu     sync.RWMutex // guards cfg
	cfg    Config
	logger *slog.Logger
	db     *sql.DB
	newID  func() string
}

var (
	_ warehouse.Driver        = (*Driver)(nil)
	_ warehouse.SessionDriver = (*Driver)(nil)
	_ warehouse.RowCounter    = (*Driver)(nil)
)

// New creates a Snowflake driver. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:    cfg,
		logger: logger.With("warehouse", Name),
		newID:  uuid.NewString,
	}
}

// Connect validates the auth parameters, then opens and pings the connection.
func (d *Driver) Connect(ctx context.Context) error {
	sfCfg, err := d.connectorConfig()
	if err != nil {
		return err
	}

	db := sql.OpenDB(gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *sfCfg))
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping: %w", err)
	}
	d.db = db
	return nil
}

func (d *Driver) connectorConfig() (*gosnowflake.Config, error) {
	cfg := d.config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("snowflake config: %w", err)
	}

	sfCfg := &gosnowflake.Config{
		Account:     cfg.Account,
		User:        cfg.User,
		Database:    cfg.Database,
		Schema:      cfg.Schema,
		Warehouse:   cfg.Warehouse,
		Role:        cfg.Role,
		Application: applicationName,
		Params:      make(map[string]*string, len(sessionParams)),
	}
	for k, v := range sessionParams {
		sfCfg.Params[k] = &v
	}
	if strings.EqualFold(cfg.Auth, AuthKeyPair) {
		key, err := LoadPrivateKey(cfg.PrivateKeyPath, cfg.PrivateKeyPassphrase)
		if err != nil {
			return nil, err
		}
		sfCfg.Authenticator = gosnowflake.AuthTypeJwt
		sfCfg.PrivateKey = key
	} else {
		sfCfg.Password = cfg.Password
	}
	return sfCfg, nil
}

func (d *Driver) config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Close closes the connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Ping checks if the connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	if d.db == nil {
		return warehouse.ErrNotConnected
	}
	return d.db.PingContext(ctx)
}

func (d *Driver) Name() string { return Name }

// Location returns account/database.
func (d *Driver) Location() string {
	cfg := d.config()
	if cfg.Database == "" {
		return cfg.Account
	}
	return cfg.Account + "/" + cfg.Database
}

// Session returns the current session context.
func (d *Driver) Session(ctx context.Context) (*warehouse.SessionInfo, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	var user, role, wh, db, schema, region sql.NullString
	if err := d.db.QueryRowContext(ctx, querySession).Scan(&user, &role, &wh, &db, &schema, &region); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &warehouse.SessionInfo{
		User:      user.String,
		Role:      role.String,
		Warehouse: wh.String,
		Database:  db.String,
		Schema:    schema.String,
		Region:    region.String,
	}, nil
}

// UseDatabase switches the session database.
func (d *Driver) UseDatabase(ctx context.Context, name string) error {
	if err := d.use(ctx, "DATABASE", name); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg.Database = strings.ToUpper(strings.TrimSpace(name))
	d.mu.Unlock()
	return nil
}

// UseSchema switches the session schema.
func (d *Driver) UseSchema(ctx context.Context, name string) error {
	if err := d.use(ctx, "SCHEMA", name); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg.Schema = strings.ToUpper(strings.TrimSpace(name))
	d.mu.Unlock()
	return nil
}

// UseRole switches the session role.
func (d *Driver) UseRole(ctx context.Context, name string) error {
	if err := d.use(ctx, "ROLE", name); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg.Role = strings.ToUpper(strings.TrimSpace(name))
	d.mu.Unlock()
	return nil
}

// UseWarehouse switches the session warehouse.
func (d *Driver) UseWarehouse(ctx context.Context, name string) error {
	if err := d.use(ctx, "WAREHOUSE", name); err != nil {
		return err
	}
	d.mu.Lock()
	d.cfg.Warehouse = strings.ToUpper(strings.TrimSpace(name))
	d.mu.Unlock()
	return nil
}

func (d *Driver) use(ctx context.Context, kind, name string) error {
	if d.db == nil {
		return warehouse.ErrNotConnected
	}
	name = strings.TrimSpace(name)
	if err := warehouse.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("use %s: %w", strings.ToLower(kind), err)
	}
	stmt := "USE " + kind + " " + strings.ToUpper(name)
	d.logger.Debug("switching session", "sql", stmt)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return d.wrap(fmt.Sprintf("use %s %s", strings.ToLower(kind), name), err)
	}
	return nil
}

// ListDatabases returns the databases visible to the session.
func (d *Driver) ListDatabases(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, "list databases", queryListDatabases)
}

// ListDatasets returns the schemas of the current database.
func (d *Driver) ListDatasets(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, "list schemas", queryListSchemas)
}

// ListTables returns the tables of a schema. An empty schema falls back to
// the configured one, then to the session's current schema.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]string, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	schema = strings.ToUpper(strings.TrimSpace(schema))
	if schema == "" {
		schema = strings.ToUpper(d.config().Schema)
	}
	if schema == "" {
		var current sql.NullString
		if err := d.db.QueryRowContext(ctx, queryCurrentSchema).Scan(&current); err != nil {
			return nil, fmt.Errorf("current schema: %w", err)
		}
		schema = current.String
	}
	if schema == "" {
		return nil, fmt.Errorf("list tables: no schema given and the session has no current schema")
	}

	tables, err := d.queryStrings(ctx, "list tables", queryListTables, schema)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		d.logger.Warn("schema has no tables", "schema", schema)
	}
	return tables, nil
}

// GetSchema returns the columns of a table.
func (d *Driver) GetSchema(ctx context.Context, ref warehouse.TableRef) (warehouse.Schema, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	ds, table := d.upperRef(ref)
	rows, err := d.db.QueryContext(ctx, queryGetColumns, ds, table)
	if err != nil {
		return nil, d.wrap("get columns", err)
	}
	defer rows.Close()

	var schema warehouse.Schema
	for rows.Next() {
		var name, dataType, nullable, comment string
		var scale int64
		if err := rows.Scan(&name, &dataType, &scale, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		mode := warehouse.ModeNullable
		if nullable == "NO" {
			mode = warehouse.ModeRequired
		}
		schema = append(schema, warehouse.Field{
			Name:        name,
			Type:        fieldType(dataType, scale),
			Mode:        mode,
			Description: comment,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	return schema, nil
}

// TableExists counts matching INFORMATION_SCHEMA rows.
func (d *Driver) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	if d.db == nil {
		return false, warehouse.ErrNotConnected
	}
	ds, table := d.upperRef(ref)
	var n int64
	if err := d.db.QueryRowContext(ctx, queryTableExists, ds, table).Scan(&n); err != nil {
		return false, d.wrap("table exists", err)
	}
	return n > 0, nil
}

// RowCount returns the row count kept in table metadata.
func (d *Driver) RowCount(ctx context.Context, ref warehouse.TableRef) (int64, error) {
	if d.db == nil {
		return 0, warehouse.ErrNotConnected
	}
	ds, table := d.upperRef(ref)
	var n int64
	err := d.db.QueryRowContext(ctx, queryRowCount, ds, table).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
	}
	if err != nil {
		return 0, d.wrap("row count", err)
	}
	return n, nil
}

// CreateTable runs CREATE TABLE for schema.
func (d *Driver) CreateTable(ctx context.Context, ref warehouse.TableRef, schema warehouse.Schema) error {
	if d.db == nil {
		return warehouse.ErrNotConnected
	}
	ddl, err := createTableDDL(d.resolve(ref), schema)
	if err != nil {
		return err
	}
	d.logger.Debug("creating table", "sql", ddl)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return d.wrap("create table "+ref.String(), err)
	}
	d.logger.Info("table created", "table", ref.String(), "columns", len(schema))
	return nil
}

// Query runs sql and reads the full result.
func (d *Driver) Query(ctx context.Context, query string) (*frame.Frame, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	d.logger.Debug("running query", "sql", query)
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, d.wrap("query", err)
	}
	defer rows.Close()
	return scanFrame(rows)
}

// FetchTable reads rows of a table.
func (d *Driver) FetchTable(ctx context.Context, ref warehouse.TableRef, opts warehouse.FetchOptions) (*frame.Frame, error) {
	query, err := warehouse.BuildSelect(warehouse.UpperDoubleQuote, d.resolve(ref), opts)
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, query)
}

// Load inserts the frame in batches inside one transaction. A truncate
// disposition empties the table first.
func (d *Driver) Load(ctx context.Context, ref warehouse.TableRef, f *frame.Frame, opts warehouse.LoadOptions) (*warehouse.LoadResult, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	ref = d.resolve(ref)
	if err := warehouse.ValidateTableRef(ref); err != nil {
		return nil, err
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = "bqpipe_load_" + d.newID()
	}
	target := warehouse.UpperDoubleQuote.Quote(ref.Dataset, ref.Table)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, d.wrap("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if opts.Disposition == warehouse.WriteTruncate {
		d.logger.Warn("truncating table", "table", ref.String(), "job_id", jobID)
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+target); err != nil {
			return nil, d.wrap("truncate "+ref.String(), err)
		}
	}

	cols := make([]string, f.NumCols())
	for i, name := range f.Names() {
		cols[i] = warehouse.UpperDoubleQuote.Quote(name)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var inserted int64
	for start := 0; start < f.NumRows(); start += insertBatchRows {
		end := min(start+insertBatchRows, f.NumRows())
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", target, strings.Join(cols, ", "),
			strings.TrimSuffix(strings.Repeat(placeholder+", ", end-start), ", "))

		args := make([]any, 0, (end-start)*len(cols))
		for r := start; r < end; r++ {
			for _, v := range f.Row(r) {
				args = append(args, bindValue(v))
			}
		}
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, d.wrap(fmt.Sprintf("insert rows %d-%d into %s", start, end-1, ref), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		} else {
			inserted += int64(end - start)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, d.wrap("commit", err)
	}
	d.logger.Debug("rows inserted", "table", ref.String(), "rows", inserted, "job_id", jobID)
	return &warehouse.LoadResult{Rows: inserted, JobID: jobID}, nil
}

// bindValue converts a frame value to the form the session reads back
// unchanged: timestamps in UTC and binary data as hex.
func bindValue(v any) any {
	switch v := v.(type) {
	case time.Time:
		return v.UTC()
	case []byte:
		return hex.EncodeToString(v)
	}
	return v
}

func (d *Driver) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	if d.db == nil {
		return nil, warehouse.ErrNotConnected
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.wrap(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// resolve fills an empty dataset with the configured schema.
func (d *Driver) resolve(ref warehouse.TableRef) warehouse.TableRef {
	if ref.Dataset == "" {
		ref.Dataset = d.config().Schema
	}
	return ref
}

func (d *Driver) upperRef(ref warehouse.TableRef) (string, string) {
	ref = d.resolve(ref)
	return strings.ToUpper(ref.Dataset), strings.ToUpper(ref.Table)
}

func (d *Driver) wrap(op string, err error) error {
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) && sfErr.Number == errObjectNotExist {
		return fmt.Errorf("%s: %w: %s", op, warehouse.ErrNotFound, sfErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
