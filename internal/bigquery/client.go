// Package bigquery runs the dataset, load and query jobs of the movie
// analytics build.
package bigquery

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"starflow/internal/observability"
	"starflow/pkg/errors"
)

// Source formats
const (
	FormatCSV    = "CSV"
	FormatNDJSON = "NEWLINE_DELIMITED_JSON"
)

// LoadSpec describes one staging load from Cloud Storage.
type LoadSpec struct {
	URI     string
	Dataset string
	Table   string
	Format  string
	Schema  []Field

	// CSV only.
	FieldDelimiter string
	Quote          string
	NullMarker     string
}

// TableID is the dataset-qualified destination.
func (s LoadSpec) TableID() string {
	return s.Dataset + "." + s.Table
}

// LoadResult reports a finished load or query job.
type LoadResult struct {
	Table    string
	JobID    string
	Rows     uint64
	Duration time.Duration
}

// Job is the part of *bigquery.Job the client waits on.
type Job interface {
	ID() string
	Wait(ctx context.Context) (*bq.JobStatus, error)
}

// backend is the narrow slice of the BigQuery API used here.
type backend interface {
	CreateDataset(ctx context.Context, dataset, location string) error
	Load(ctx context.Context, dataset, table string, src *bq.GCSReference, wd bq.TableWriteDisposition) (Job, error)
	Query(ctx context.Context, sql, dataset, table string, wd bq.TableWriteDisposition) (Job, error)
	TableRows(ctx context.Context, dataset, table string) (uint64, error)
	Scalar(ctx context.Context, sql string) (bq.Value, error)
	DeleteTable(ctx context.Context, dataset, table string) error
	DeleteDataset(ctx context.Context, dataset string, withContents bool) error
	Project() string
	Close() error
}

// Client runs BigQuery jobs and blocks until they finish.
type Client struct {
	backend  backend
	location string
	logger   *observability.Logger
}

// NewClient authenticates with a service account key. An empty project
// uses the key's own project.
func NewClient(ctx context.Context, project, keyPath, location string) (*Client, error) {
	if project == "" {
		project = bq.DetectProjectID
	}

	opts := []option.ClientOption{}
	if keyPath != "" {
		opts = append(opts, option.WithCredentialsFile(keyPath))
	}

	c, err := bq.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Failed to create BigQuery client").
			WithContext("key_path", keyPath).
			WithSuggestions("Check the service account key path", "Verify the key has BigQuery Job User access")
	}
	return newClient(&apiBackend{c: c, location: location}, location), nil
}

func newClient(b backend, location string) *Client {
	if location == "" {
		location = "US"
	}
	return &Client{
		backend:  b,
		location: location,
		logger:   observability.GetDefaultLogger().WithField("component", "bigquery"),
	}
}

// Project returns the project jobs run in.
func (c *Client) Project() string {
	return c.backend.Project()
}

// Close releases the underlying client
func (c *Client) Close() error {
	return c.backend.Close()
}

// CreateDataset creates a dataset. An existing dataset is reported with
// created=false and no error.
func (c *Client) CreateDataset(ctx context.Context, name string) (bool, error) {
	err := c.backend.CreateDataset(ctx, name, c.location)
	if err == nil {
		c.logger.Infof("Created dataset %s.%s", c.Project(), name)
		return true, nil
	}
	if hasStatus(err, http.StatusConflict) {
		c.logger.Infof("Dataset already exists: %s.%s", c.Project(), name)
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeServiceUnavailable,
		fmt.Sprintf("Failed to create dataset %s", name)).WithContext("dataset", name)
}

// BuildReference turns a LoadSpec into the GCS source of a load job.
func BuildReference(spec LoadSpec) *bq.GCSReference {
	ref := bq.NewGCSReference(spec.URI)
	ref.Schema = ToSchema(spec.Schema)

	switch spec.Format {
	case FormatNDJSON:
		ref.SourceFormat = bq.JSON
	default:
		ref.SourceFormat = bq.CSV
		ref.SkipLeadingRows = 1
		ref.FieldDelimiter = spec.FieldDelimiter
		if ref.FieldDelimiter == "" {
			ref.FieldDelimiter = ","
		}
		if spec.Quote != "" {
			ref.Quote = spec.Quote
		}
		ref.NullMarker = spec.NullMarker
		ref.AllowQuotedNewlines = false
	}

	if strings.HasSuffix(spec.URI, ".gz") {
		ref.Compression = bq.Gzip
	}
	return ref
}

// LoadFromURI truncates the destination table and loads spec.URI into it.
func (c *Client) LoadFromURI(ctx context.Context, spec LoadSpec) (LoadResult, error) {
	start := time.Now()
	result := LoadResult{Table: spec.TableID()}

	job, err := c.backend.Load(ctx, spec.Dataset, spec.Table, BuildReference(spec), bq.WriteTruncate)
	if err != nil {
		return result, errors.LoadJobError(result.Table, err, nil)
	}
	result.JobID = job.ID()
	c.logger.Debugf("Starting job %s", result.JobID)

	if err := waitJob(ctx, job, func(cause error, messages []string) error {
		return errors.LoadJobError(result.Table, cause, messages).WithContext("job_id", result.JobID)
	}); err != nil {
		return result, err
	}

	rows, err := c.backend.TableRows(ctx, spec.Dataset, spec.Table)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeServiceUnavailable,
			fmt.Sprintf("Failed to read metadata of %s", result.Table))
	}
	result.Rows = rows
	result.Duration = time.Since(start)
	return result, nil
}

// QueryToTable runs sql and writes the result to dataset.table.
func (c *Client) QueryToTable(ctx context.Context, sql, dataset, table, disposition string) (LoadResult, error) {
	start := time.Now()
	result := LoadResult{Table: dataset + "." + table}

	wd := bq.TableWriteDisposition(disposition)
	if wd == "" {
		wd = bq.WriteTruncate
	}

	job, err := c.backend.Query(ctx, sql, dataset, table, wd)
	if err != nil {
		return result, errors.QueryJobError(result.Table, err, nil)
	}
	result.JobID = job.ID()

	if err := waitJob(ctx, job, func(cause error, messages []string) error {
		return errors.QueryJobError(result.Table, cause, messages).WithContext("job_id", result.JobID)
	}); err != nil {
		return result, err
	}

	rows, err := c.backend.TableRows(ctx, dataset, table)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeServiceUnavailable,
			fmt.Sprintf("Failed to read metadata of %s", result.Table))
	}
	result.Rows = rows
	result.Duration = time.Since(start)
	c.logger.Infof("Query results loaded to the table %s.%s", c.Project(), result.Table)
	return result, nil
}

// waitJob blocks on job. Load jobs run with no tolerance for bad records,
// so any reported error means the job was rejected.
func waitJob(ctx context.Context, job Job, fail func(cause error, messages []string) error) error {
	status, err := job.Wait(ctx)
	if err != nil {
		return fail(err, nil)
	}
	if status == nil {
		return nil
	}
	if status.Err() == nil && len(status.Errors) == 0 {
		return nil
	}

	messages := make([]string, 0, len(status.Errors))
	for _, e := range status.Errors {
		if e != nil {
			messages = append(messages, e.Message)
		}
	}
	cause := status.Err()
	if cause == nil {
		cause = stderrors.New(strings.Join(messages, "; "))
	}
	return fail(cause, messages)
}

// QueryInt64 runs sql and returns the first column of its first row.
func (c *Client) QueryInt64(ctx context.Context, sql string) (int64, error) {
	v, err := c.backend.Scalar(ctx, sql)
	if err == iterator.Done {
		return 0, errors.New(errors.ErrCodeNoResults, "Query returned no rows").WithContext("query", sql)
	}
	if err != nil {
		return 0, errors.QueryJobError("", err, nil).WithContext("query", sql)
	}

	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Query returned %T, want an integer", v))
	}
}

// DeleteTable deletes dataset.table.
func (c *Client) DeleteTable(ctx context.Context, dataset, table string, notFoundOK bool) error {
	err := c.backend.DeleteTable(ctx, dataset, table)
	if err == nil || (notFoundOK && hasStatus(err, http.StatusNotFound)) {
		c.logger.Infof("Deleted table '%s.%s'", dataset, table)
		return nil
	}
	return errors.Wrap(err, errors.ErrCodeSQLObjectNotFound,
		fmt.Sprintf("Failed to delete table %s.%s", dataset, table))
}

// DeleteDataset deletes a dataset, optionally with its tables. A missing
// dataset is not an error.
func (c *Client) DeleteDataset(ctx context.Context, name string, deleteContents bool) error {
	err := c.backend.DeleteDataset(ctx, name, deleteContents)
	if err == nil || hasStatus(err, http.StatusNotFound) {
		c.logger.Infof("Deleted dataset '%s'", name)
		return nil
	}
	return errors.Wrap(err, errors.ErrCodeServiceUnavailable,
		fmt.Sprintf("Failed to delete dataset %s", name)).
		WithSuggestions("Pass delete contents when the dataset still holds tables")
}

func hasStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return stderrors.As(err, &gerr) && gerr.Code == code
}

// apiBackend is backed by the real client library.
type apiBackend struct {
	c        *bq.Client
	location string
}

func (b *apiBackend) Project() string { return b.c.Project() }

func (b *apiBackend) Close() error { return b.c.Close() }

func (b *apiBackend) CreateDataset(ctx context.Context, dataset, location string) error {
	return b.c.Dataset(dataset).Create(ctx, &bq.DatasetMetadata{Location: location})
}

func (b *apiBackend) Load(ctx context.Context, dataset, table string, src *bq.GCSReference, wd bq.TableWriteDisposition) (Job, error) {
	loader := b.c.Dataset(dataset).Table(table).LoaderFrom(src)
	loader.WriteDisposition = wd
	loader.CreateDisposition = bq.CreateIfNeeded
	loader.Location = b.location

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (b *apiBackend) Query(ctx context.Context, sql, dataset, table string, wd bq.TableWriteDisposition) (Job, error) {
	q := b.c.Query(sql)
	q.QueryConfig.UseLegacySQL = false
	q.QueryConfig.Dst = b.c.Dataset(dataset).Table(table)
	q.QueryConfig.CreateDisposition = bq.CreateIfNeeded
	q.QueryConfig.WriteDisposition = wd
	q.Location = b.location

	job, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (b *apiBackend) TableRows(ctx context.Context, dataset, table string) (uint64, error) {
	md, err := b.c.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		return 0, err
	}
	return md.NumRows, nil
}

func (b *apiBackend) Scalar(ctx context.Context, sql string) (bq.Value, error) {
	q := b.c.Query(sql)
	q.Location = b.location
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var row []bq.Value
	if err := it.Next(&row); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, iterator.Done
	}
	return row[0], nil
}

func (b *apiBackend) DeleteTable(ctx context.Context, dataset, table string) error {
	return b.c.Dataset(dataset).Table(table).Delete(ctx)
}

func (b *apiBackend) DeleteDataset(ctx context.Context, dataset string, withContents bool) error {
	if withContents {
		return b.c.Dataset(dataset).DeleteWithContents(ctx)
	}
	return b.c.Dataset(dataset).Delete(ctx)
}
