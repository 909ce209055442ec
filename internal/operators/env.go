package operators

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"

	"starflow/internal/bigquery"
	"starflow/internal/observability"
	"starflow/internal/warehouse"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

// BigQuery is the slice of bigquery.Client the operators drive.
type BigQuery interface {
	CreateDataset(ctx context.Context, name string) (bool, error)
	LoadFromURI(ctx context.Context, spec bigquery.LoadSpec) (bigquery.LoadResult, error)
	QueryToTable(ctx context.Context, sql, dataset, table, disposition string) (bigquery.LoadResult, error)
	QueryInt64(ctx context.Context, sql string) (int64, error)
	DeleteTable(ctx context.Context, dataset, table string, notFoundOK bool) error
	DeleteDataset(ctx context.Context, name string, deleteContents bool) error
	Close() error
}

// BigQueryFactory opens a client authenticated with the key at keyPath.
type BigQueryFactory func(ctx context.Context, keyPath string) (BigQuery, error)

// Env is what operators resolve at run time: connection ids, variables
// and the BigQuery client.
type Env struct {
	Config      *models.Config
	Connections *Connections
	BigQuery    BigQueryFactory
	// Out receives the per-row vendor messages of failed jobs.
	Out io.Writer
}

// NewEnv builds an Env backed by real warehouse and BigQuery clients.
func NewEnv(cfg *models.Config) *Env {
	return &Env{
		Config:      cfg,
		Connections: NewConnections(cfg),
		BigQuery: func(ctx context.Context, keyPath string) (BigQuery, error) {
			return bigquery.NewClient(ctx, cfg.GCP.Project, keyPath, cfg.GCP.Location)
		},
		Out: os.Stdout,
	}
}

// Close releases every cached connection.
func (e *Env) Close() error {
	if e.Connections == nil {
		return nil
	}
	return e.Connections.Close()
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// BigQueryClient resolves the service account variable and opens a client.
func (e *Env) BigQueryClient(ctx context.Context) (BigQuery, error) {
	if e.BigQuery == nil {
		return nil, errors.New(errors.ErrCodeConfigMissing, "No BigQuery client configured")
	}
	keyPath, err := e.Config.Variable(models.ServiceAccountPathVar)
	if err != nil {
		return nil, err
	}
	return e.BigQuery(ctx, keyPath)
}

// Connections resolves connection ids to connected warehouse services.
// Services are opened lazily and cached until Close.
type Connections struct {
	cfg      *models.Config
	mu       sync.Mutex
	services map[string]*warehouse.Service
	logger   *observability.Logger
}

// NewConnections creates a resolver over the profile's connections.
func NewConnections(cfg *models.Config) *Connections {
	return &Connections{
		cfg:      cfg,
		services: make(map[string]*warehouse.Service),
		logger:   observability.GetDefaultLogger().WithField("component", "connections"),
	}
}

func normalizeConnID(id string) string {
	if id == "" {
		return models.DefaultConnID
	}
	return id
}

// Set registers an already connected service under id.
func (c *Connections) Set(id string, service *warehouse.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[normalizeConnID(id)] = service
}

// Get returns the service for id, connecting on first use.
func (c *Connections) Get(ctx context.Context, id string) (*warehouse.Service, error) {
	id = normalizeConnID(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.services[id]; ok {
		return s, nil
	}

	cluster, err := c.cfg.Connection(id)
	if err != nil {
		return nil, err
	}

	s := warehouse.NewService(warehouse.FromCluster(cluster))
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	c.logger.Debugf("Connected %s to %s", id, cluster.Host)
	c.services[id] = s
	return s, nil
}

// Close closes every cached service and forgets it.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.services))
	for id := range c.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if err := c.services[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.services, id)
	}
	return firstErr
}
