package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// client is the subset of the BigQuery API the driver uses. cloudClient is
// the production implementation; tests substitute a fake.
type client interface {
	ping(ctx context.Context) error
	datasets(ctx context.Context) ([]string, error)
	tables(ctx context.Context, dataset string) ([]string, error)
	tableMetadata(ctx context.Context, dataset, table string) (*bigquery.TableMetadata, error)
	createTable(ctx context.Context, dataset, table string, md *bigquery.TableMetadata) error
	query(ctx context.Context, job queryJob) (*queryResult, error)
	load(ctx context.Context, dataset, table string, job loadJob) (int64, error)
	close() error
}

type queryJob struct {
	SQL      string
	JobID    string
	Location string
}

type queryResult struct {
	Schema bigquery.Schema
	Rows   [][]bigquery.Value
}

// loadJob reads from Reader, or from GCSURI when set.
type loadJob struct {
	Reader      io.Reader
	GCSURI      string
	Config      bigquery.FileConfig
	Disposition bigquery.TableWriteDisposition
	JobID       string
	Location    string
}

type cloudClient struct {
	bq *bigquery.Client
}

var _ client = (*cloudClient)(nil)

func (c *cloudClient) ping(ctx context.Context) error {
	_, err := c.bq.Datasets(ctx).Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	return err
}

func (c *cloudClient) datasets(ctx context.Context) ([]string, error) {
	it := c.bq.Datasets(ctx)
	var names []string
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, ds.DatasetID)
	}
	return names, nil
}

func (c *cloudClient) tables(ctx context.Context, dataset string) ([]string, error) {
	it := c.bq.Dataset(dataset).Tables(ctx)
	var names []string
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, t.TableID)
	}
	return names, nil
}

func (c *cloudClient) tableMetadata(ctx context.Context, dataset, table string) (*bigquery.TableMetadata, error) {
	return c.bq.Dataset(dataset).Table(table).Metadata(ctx)
}

func (c *cloudClient) createTable(ctx context.Context, dataset, table string, md *bigquery.TableMetadata) error {
	return c.bq.Dataset(dataset).Table(table).Create(ctx, md)
}

func (c *cloudClient) query(ctx context.Context, job queryJob) (*queryResult, error) {
	q := c.bq.Query(job.SQL)
	q.JobID = job.JobID
	q.Location = job.Location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	res := &queryResult{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, row)
	}
	res.Schema = it.Schema
	return res, nil
}

func (c *cloudClient) load(ctx context.Context, dataset, table string, job loadJob) (int64, error) {
	var src bigquery.LoadSource
	if job.GCSURI != "" {
		ref := bigquery.NewGCSReference(job.GCSURI)
		ref.FileConfig = job.Config
		src = ref
	} else {
		rs := bigquery.NewReaderSource(job.Reader)
		rs.FileConfig = job.Config
		src = rs
	}

	loader := c.bq.Dataset(dataset).Table(table).LoaderFrom(src)
	loader.WriteDisposition = job.Disposition
	loader.CreateDisposition = bigquery.CreateNever
	loader.JobID = job.JobID
	loader.Location = job.Location

	j, err := loader.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := j.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}

	if status.Statistics != nil {
		if ls, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			return ls.OutputRows, nil
		}
	}
	return -1, nil
}

func (c *cloudClient) close() error {
	return c.bq.Close()
}

// stager uploads load files to Cloud Storage.
type stager interface {
	upload(ctx context.Context, object string, r io.Reader) (string, error)
	remove(ctx context.Context, object string) error
	close() error
}

type gcsStager struct {
	gcs    *storage.Client
	bucket string
}

func (s *gcsStager) upload(ctx context.Context, object string, r io.Reader) (string, error) {
	w := s.gcs.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %w", s.bucket, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func (s *gcsStager) remove(ctx context.Context, object string) error {
	return s.gcs.Bucket(s.bucket).Object(object).Delete(ctx)
}

func (s *gcsStager) close() error {
	return s.gcs.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
