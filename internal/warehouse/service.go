package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"starflow/internal/observability"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

// Supported drivers
const (
	DriverRedshift  = "redshift"
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
	DriverDuckDB    = "duckdb"
)

// Service executes statement sequences against a SQL warehouse
type Service struct {
	db             *sql.DB
	config         Config
	connected      bool
	circuitBreaker *errors.CircuitBreaker
	retry          *errors.RetryConfig
	logger         *observability.Logger
}

// Config holds warehouse connection configuration
type Config struct {
	Driver   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Schema   string
	Region   string
	Timeout  time.Duration
	// DSN, when set, is passed to the driver as is.
	DSN string
}

// FromCluster converts a profile cluster section into a Config.
func FromCluster(cl models.Cluster) Config {
	driver := cl.Driver
	if driver == "" {
		driver = DriverRedshift
	}
	return Config{
		Driver:   driver,
		Host:     cl.Host,
		Port:     cl.DBPort,
		Database: cl.DBName,
		User:     cl.DBUser,
		Password: cl.DBPassword,
		Region:   cl.Region,
	}
}

var (
	breakersMu sync.Mutex
	breakers   = map[string]*errors.CircuitBreaker{}
)

// breakerFor returns the circuit breaker shared by every service that
// targets the same warehouse, so failed connects add up across tasks.
func breakerFor(config Config) *errors.CircuitBreaker {
	key := config.Driver + "|" + config.DSN
	if config.DSN == "" {
		key = strings.Join([]string{config.Driver, config.Host, strconv.Itoa(config.Port), config.Database}, "|")
	}

	breakersMu.Lock()
	defer breakersMu.Unlock()

	cb, ok := breakers[key]
	if !ok {
		name := "warehouse"
		if config.Host != "" {
			name += " " + config.Host
		}
		cb = errors.NewCircuitBreaker(name, 5, 30*time.Second)
		breakers[key] = cb
	}
	return cb
}

// NewService creates a new warehouse service
func NewService(config Config) *Service {
	return &Service{
		config:         config,
		circuitBreaker: breakerFor(config),
		retry:          errors.DefaultRetryConfig(),
		logger:         observability.GetDefaultLogger().WithField("driver", config.Driver),
	}
}

// NewServiceWithDB wraps an already open database handle.
func NewServiceWithDB(db *sql.DB, config Config) *Service {
	s := NewService(config)
	s.db = db
	s.connected = db != nil
	return s
}

// Connect opens the database and pings it, retrying transient failures
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	driverName, dsn, err := BuildDSN(s.config)
	if err != nil {
		return err
	}

	return s.circuitBreaker.Execute(ctx, func() error {
		return errors.Retry(ctx, s.retry, func(ctx context.Context) error {
			db, err := sql.Open(driverName, dsn)
			if err != nil {
				return errors.ConnectionError("Failed to open warehouse connection", err).
					WithContext("driver", s.config.Driver).
					WithContext("host", s.config.Host)
			}

			db.SetMaxOpenConns(4)
			db.SetMaxIdleConns(2)
			db.SetConnMaxLifetime(10 * time.Minute)

			pingCtx, cancel := s.getContext(ctx)
			defer cancel()

			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()

				if strings.Contains(strings.ToLower(err.Error()), "authentication") ||
					strings.Contains(strings.ToLower(err.Error()), "password") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", s.config.User).
						WithSuggestions(
							"Verify DB_USER and DB_PASSWORD in the [CLUSTER] section",
							"If DB_PASSWORD is 'keyring', re-run 'starflow setup'",
						)
				}

				return errors.ConnectionError("Failed to connect to warehouse", err).
					WithContext("host", s.config.Host).
					WithContext("port", s.config.Port).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			s.logger.InfoWithFields("Connected to warehouse", map[string]interface{}{
				"host":     s.config.Host,
				"database": s.config.Database,
			})
			return nil
		})
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// Config returns the connection settings
func (s *Service) Config() Config {
	return s.config
}

func (s *Service) notConnected() error {
	return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
		WithSuggestions("Call Connect() before executing SQL")
}

// ExecStatements runs each statement in its own transaction and commits it
// before moving on. It stops at the first failure.
func (s *Service) ExecStatements(ctx context.Context, statements ...string) error {
	if !s.connected {
		return s.notConnected()
	}

	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		start := time.Now()
		if err := s.execCommitted(ctx, stmt); err != nil {
			return errors.SQLError(
				fmt.Sprintf("Failed to execute statement %d", i+1),
				stmt,
				err,
			).WithContext("statement_index", i+1).
				WithContext("total_statements", len(statements))
		}

		s.logger.DebugWithFields("Statement committed", map[string]interface{}{
			"index":    i + 1,
			"duration": time.Since(start),
		})
	}

	return nil
}

func (s *Service) execCommitted(ctx context.Context, stmt string) error {
	execCtx, cancel := s.getContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(execCtx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(execCtx, stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ExecuteFile reads a script from disk and runs it with ExecuteSQL
func (s *Service) ExecuteFile(ctx context.Context, path string) error {
	if !s.connected {
		return s.notConnected()
	}

	content, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's own flags
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileNotFound, fmt.Sprintf("Failed to read %s", path))
	}

	return s.ExecuteSQL(ctx, string(content))
}

// ExecuteSQL splits a script on semicolons and runs all of it in one transaction
func (s *Service) ExecuteSQL(ctx context.Context, script string) error {
	if !s.connected {
		return s.notConnected()
	}

	execCtx, cancel := s.getContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(execCtx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	statements := splitStatements(script)
	for i, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := tx.ExecContext(execCtx, stmt); err != nil {
			_ = tx.Rollback()
			return errors.SQLError(
				fmt.Sprintf("Failed to execute statement %d", i+1),
				stmt,
				err,
			).WithContext("statement_index", i+1).
				WithContext("total_statements", len(statements))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
	}

	return nil
}

// SetSearchPath makes schema the default for unqualified names
func (s *Service) SetSearchPath(ctx context.Context, schema string) error {
	return s.ExecStatements(ctx, fmt.Sprintf("SET search_path TO %s", schema))
}

// CreateSchema creates a schema
func (s *Service) CreateSchema(ctx context.Context, schema string, ifNotExists bool) error {
	stmt := "CREATE SCHEMA " + schema
	if ifNotExists {
		stmt = "CREATE SCHEMA IF NOT EXISTS " + schema
	}
	return s.ExecStatements(ctx, stmt)
}

// DropSchema drops a schema if it exists
func (s *Service) DropSchema(ctx context.Context, schema string, cascade bool) error {
	stmt := "DROP SCHEMA IF EXISTS " + schema
	if cascade {
		stmt += " CASCADE"
	}
	return s.ExecStatements(ctx, stmt)
}

// QueryInt64 runs a query returning a single integer, typically a count
func (s *Service) QueryInt64(ctx context.Context, query string) (int64, error) {
	if !s.connected {
		return 0, s.notConnected()
	}

	queryCtx, cancel := s.getContext(ctx)
	defer cancel()

	var n sql.NullInt64
	if err := s.db.QueryRowContext(queryCtx, query).Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.New(errors.ErrCodeNoResults, "Query returned no rows").
				WithContext("query", query)
		}
		return 0, errors.SQLError("Failed to run query", query, err)
	}
	return n.Int64, nil
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// splitStatements splits on semicolons that are not inside quotes
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)

	for i, char := range sql {
		if !inString {
			if char == '\'' || char == '"' {
				inString = true
				stringChar = char
			} else if char == ';' {
				if i == 0 || sql[i-1] != '\\' {
					statements = append(statements, current.String())
					current.Reset()
					continue
				}
			}
		} else if char == stringChar && (i == 0 || sql[i-1] != '\\') {
			inString = false
		}
		current.WriteRune(char)
	}

	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}

	return statements
}

// ValidateConfig validates the warehouse configuration
func ValidateConfig(config Config) error {
	if config.DSN != "" {
		return nil
	}
	switch config.Driver {
	case DriverRedshift, DriverPostgres, DriverSnowflake:
	case DriverDuckDB:
		return nil
	default:
		return errors.New(errors.ErrCodeUnsupportedDriver,
			fmt.Sprintf("Unsupported warehouse driver '%s'", config.Driver)).
			WithSuggestions("Use one of: redshift, postgres, snowflake, duckdb")
	}
	if config.Host == "" {
		return fmt.Errorf("host is required")
	}
	if config.User == "" {
		return fmt.Errorf("user is required")
	}
	if config.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}
