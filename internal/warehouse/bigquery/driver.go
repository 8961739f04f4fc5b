// Package bigquery implements warehouse.Driver on top of the BigQuery client
// library.
package bigquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// Name is the warehouse kind served by this package.
const Name = "bigquery"

const stagingPrefix = "bqpipe"

// Config holds the connection settings for one BigQuery project.
type Config struct {
	Project         string
	CredentialsFile string
	Location        string
	// StagingBucket, when set, routes loads through gs://<bucket>/bqpipe/.
	StagingBucket string
}

// Driver implements warehouse.Driver for BigQuery.
type Driver struct {
	cfg    Config
	logger *slog.Logger
	client client
	stager stager
	newID  func() string
}

var (
	_ warehouse.Driver     = (*Driver)(nil)
	_ warehouse.RowCounter = (*Driver)(nil)
)

// New creates a BigQuery driver. Call Connect before use.
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

// Connect creates the BigQuery client, and the Cloud Storage client when a
// staging bucket is configured. Without a credentials file the application
// default credentials are used.
func (d *Driver) Connect(ctx context.Context) error {
	if d.cfg.Project == "" {
		return fmt.Errorf("connect: project is required")
	}

	var opts []option.ClientOption
	if d.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(d.cfg.CredentialsFile))
	}

	bq, err := bigquery.NewClient(ctx, d.cfg.Project, opts...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	bq.Location = d.cfg.Location
	d.client = &cloudClient{bq: bq}

	if d.cfg.StagingBucket != "" {
		gcs, err := storage.NewClient(ctx, opts...)
		if err != nil {
			bq.Close()
			return fmt.Errorf("connect storage: %w", err)
		}
		d.stager = &gcsStager{gcs: gcs, bucket: d.cfg.StagingBucket}
	}

	if err := d.client.ping(ctx); err != nil {
		d.Close()
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the clients.
func (d *Driver) Close() error {
	var err error
	if d.stager != nil {
		err = d.stager.close()
		d.stager = nil
	}
	if d.client != nil {
		if cerr := d.client.close(); cerr != nil {
			err = cerr
		}
		d.client = nil
	}
	return err
}

// Ping checks if the connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	if d.client == nil {
		return warehouse.ErrNotConnected
	}
	return d.client.ping(ctx)
}

func (d *Driver) Name() string { return Name }

// Location returns the project ID.
func (d *Driver) Location() string { return d.cfg.Project }

// ListDatasets returns the datasets of the project.
func (d *Driver) ListDatasets(ctx context.Context) ([]string, error) {
	if d.client == nil {
		return nil, warehouse.ErrNotConnected
	}
	names, err := d.client.datasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if len(names) == 0 {
		d.logger.Info("project has no datasets", "project", d.cfg.Project)
	}
	return names, nil
}

// ListTables returns the tables of a dataset.
func (d *Driver) ListTables(ctx context.Context, dataset string) ([]string, error) {
	if d.client == nil {
		return nil, warehouse.ErrNotConnected
	}
	names, err := d.client.tables(ctx, dataset)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("list tables: dataset %q: %w", dataset, warehouse.ErrNotFound)
		}
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(names) == 0 {
		d.logger.Warn("dataset has no tables", "dataset", dataset)
	}
	return names, nil
}

// GetSchema returns the schema of a table.
func (d *Driver) GetSchema(ctx context.Context, ref warehouse.TableRef) (warehouse.Schema, error) {
	md, err := d.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return fromBigQuerySchema(md.Schema), nil
}

// TableExists reports whether the table exists.
func (d *Driver) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	_, err := d.metadata(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, warehouse.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RowCount returns the row count from table metadata.
func (d *Driver) RowCount(ctx context.Context, ref warehouse.TableRef) (int64, error) {
	md, err := d.metadata(ctx, ref)
	if err != nil {
		return 0, err
	}
	return int64(md.NumRows), nil
}

func (d *Driver) metadata(ctx context.Context, ref warehouse.TableRef) (*bigquery.TableMetadata, error) {
	if d.client == nil {
		return nil, warehouse.ErrNotConnected
	}
	md, err := d.client.tableMetadata(ctx, ref.Dataset, ref.Table)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("table %s: %w", ref, warehouse.ErrNotFound)
		}
		return nil, fmt.Errorf("table %s metadata: %w", ref, err)
	}
	return md, nil
}

// CreateTable creates an empty table.
func (d *Driver) CreateTable(ctx context.Context, ref warehouse.TableRef, schema warehouse.Schema) error {
	if d.client == nil {
		return warehouse.ErrNotConnected
	}
	bqSchema, err := toBigQuerySchema(schema)
	if err != nil {
		return err
	}
	if err := d.client.createTable(ctx, ref.Dataset, ref.Table, &bigquery.TableMetadata{
		Name:     ref.Table,
		Schema:   bqSchema,
		Location: d.cfg.Location,
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("create table %s: dataset %q: %w", ref, ref.Dataset, warehouse.ErrNotFound)
		}
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	d.logger.Info("table created", "table", ref.String(), "columns", len(schema))
	return nil
}

// Query runs sql and reads the full result.
func (d *Driver) Query(ctx context.Context, sql string) (*frame.Frame, error) {
	if d.client == nil {
		return nil, warehouse.ErrNotConnected
	}
	jobID := "bqpipe_query_" + d.newID()
	d.logger.Debug("running query", "job_id", jobID, "sql", sql)

	res, err := d.client.query(ctx, queryJob{SQL: sql, JobID: jobID, Location: d.cfg.Location})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return resultFrame(res)
}

// FetchTable reads rows of a table.
func (d *Driver) FetchTable(ctx context.Context, ref warehouse.TableRef, opts warehouse.FetchOptions) (*frame.Frame, error) {
	sql, err := warehouse.BuildSelect(warehouse.Backtick, ref, opts)
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, sql)
}

// Load runs a load job writing f into an existing table. The table keeps its
// own schema; opts.Schema only drives value encoding.
func (d *Driver) Load(ctx context.Context, ref warehouse.TableRef, f *frame.Frame, opts warehouse.LoadOptions) (*warehouse.LoadResult, error) {
	if d.client == nil {
		return nil, warehouse.ErrNotConnected
	}

	var buf bytes.Buffer
	if err := encodeNDJSON(&buf, f, opts.Schema); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = "bqpipe_load_" + d.newID()
	}

	job := loadJob{
		Config: bigquery.FileConfig{
			SourceFormat:        bigquery.JSON,
			IgnoreUnknownValues: opts.IgnoreUnknownValues,
		},
		Disposition: bigquery.TableWriteDisposition(opts.Disposition),
		JobID:       jobID,
		Location:    d.cfg.Location,
	}
	job.Config.AllowJaggedRows = opts.AllowJaggedRows

	if d.stager != nil {
		object := path.Join(stagingPrefix, jobID+".json")
		uri, err := d.stager.upload(ctx, object, &buf)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := d.stager.remove(context.WithoutCancel(ctx), object); err != nil {
				d.logger.Warn("staging object not removed", "uri", uri, "error", err)
			}
		}()
		job.GCSURI = uri
	} else {
		job.Reader = &buf
	}

	d.logger.Debug("starting load job", "job_id", jobID, "table", ref.String(),
		"disposition", opts.Disposition, "rows", f.NumRows(), "staged", job.GCSURI != "")

	rows, err := d.client.load(ctx, ref.Dataset, ref.Table, job)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("load %s: %w", ref, warehouse.ErrNotFound)
		}
		return nil, fmt.Errorf("load %s (job %s): %w", ref, jobID, err)
	}
	if rows < 0 {
		rows = int64(f.NumRows())
	}
	return &warehouse.LoadResult{Rows: rows, JobID: jobID}, nil
}
