package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/pkg/errors"
	"starflow/pkg/models"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := NewService(Config{Driver: DriverRedshift, Host: "h", User: "u", Database: "dwh"})
	service.db = db
	service.connected = true
	return service, mock
}

func TestFromCluster(t *testing.T) {
	cfg := FromCluster(models.Cluster{
		Host:       "dwh.example.com",
		DBName:     "dwh",
		DBUser:     "dwhuser",
		DBPassword: "pw",
		DBPort:     5439,
		Region:     "us-west-2",
	})

	assert.Equal(t, DriverRedshift, cfg.Driver)
	assert.Equal(t, "dwh.example.com", cfg.Host)
	assert.Equal(t, 5439, cfg.Port)
	assert.Equal(t, "dwh", cfg.Database)
	assert.Equal(t, "pw", cfg.Password)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid redshift",
			config: Config{Driver: DriverRedshift, Host: "h", User: "u", Database: "d"},
		},
		{
			name:   "duckdb needs nothing",
			config: Config{Driver: DriverDuckDB},
		},
		{
			name:   "explicit dsn",
			config: Config{Driver: "anything", DSN: "host=x"},
		},
		{
			name:     "missing host",
			config:   Config{Driver: DriverPostgres, User: "u", Database: "d"},
			errorMsg: "host is required",
		},
		{
			name:     "missing user",
			config:   Config{Driver: DriverSnowflake, Host: "acct", Database: "d"},
			errorMsg: "user is required",
		},
		{
			name:     "missing database",
			config:   Config{Driver: DriverRedshift, Host: "h", User: "u"},
			errorMsg: "database is required",
		},
		{
			name:     "unknown driver",
			config:   Config{Driver: "oracle"},
			errorMsg: "Unsupported warehouse driver 'oracle'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.config)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		wantDriver string
		contains   []string
	}{
		{
			name: "redshift keyword dsn",
			config: Config{Driver: DriverRedshift, Host: "dwh.example.com", Port: 5439,
				Database: "dwh", User: "dwhuser", Password: "Passw0rd", Schema: "analytics"},
			wantDriver: "pgx",
			contains: []string{"host=dwh.example.com", "port=5439", "dbname=dwh", "user=dwhuser",
				"password=Passw0rd", "search_path=analytics"},
		},
		{
			name:       "password with spaces is quoted",
			config:     Config{Driver: DriverPostgres, Host: "h", Database: "d", User: "u", Password: "a b'c"},
			wantDriver: "pgx",
			contains:   []string{`password='a b\'c'`, "port=5439"},
		},
		{
			name:       "snowflake",
			config:     Config{Driver: DriverSnowflake, Host: "xy12345", Database: "DWH", User: "loader", Password: "pw", Schema: "PUBLIC"},
			wantDriver: "snowflake",
			contains:   []string{"loader:pw@", "xy12345", "database=DWH", "schema=PUBLIC"},
		},
		{
			name:       "duckdb file",
			config:     Config{Driver: DriverDuckDB, Database: "/tmp/lake.duckdb"},
			wantDriver: "duckdb",
			contains:   []string{"/tmp/lake.duckdb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := BuildDSN(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			for _, want := range tt.contains {
				assert.Contains(t, dsn, want)
			}
		})
	}
}

func TestExecStatements(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS stg_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS stg_songs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := service.ExecStatements(context.Background(),
		"DROP TABLE IF EXISTS stg_events", "  ", "DROP TABLE IF EXISTS stg_songs")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecStatementsStopsAtFirstFailure(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnError(fmt.Errorf(`relation "b" already exists`))
	mock.ExpectRollback()

	err := service.ExecStatements(context.Background(), "CREATE TABLE a", "CREATE TABLE b", "CREATE TABLE c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to execute statement 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQL(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA analytics").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET search_path TO analytics").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := service.ExecuteSQL(context.Background(), "CREATE SCHEMA analytics;\nSET search_path TO analytics;")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLRollsBack(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELEC 2").WillReturnError(fmt.Errorf("syntax error at or near \"SELEC\""))
	mock.ExpectRollback()

	err := service.ExecuteSQL(context.Background(), "SELECT 1; SELEC 2")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSQLSyntax, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteFile(t *testing.T) {
	service, mock := newMockService(t)

	path := filepath.Join(t.TempDir(), "script.sql")
	require.NoError(t, os.WriteFile(path, []byte("DELETE FROM songs;"), 0600))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM songs").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, service.ExecuteFile(context.Background(), path))
	assert.Error(t, service.ExecuteFile(context.Background(), filepath.Join(t.TempDir(), "nope.sql")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaHelpers(t *testing.T) {
	service, mock := newMockService(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DROP SCHEMA IF EXISTS analytics CASCADE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS analytics").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("SET search_path TO analytics").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, service.DropSchema(ctx, "analytics", true))
	require.NoError(t, service.CreateSchema(ctx, "analytics", true))
	require.NoError(t, service.SetSearchPath(ctx, "analytics"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryInt64(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM songplays`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6820))

	n, err := service.QueryInt64(context.Background(), "SELECT COUNT(*) FROM songplays")
	require.NoError(t, err)
	assert.Equal(t, int64(6820), n)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}))
	_, err = service.QueryInt64(context.Background(), "SELECT COUNT(*) FROM users")
	assert.Equal(t, errors.ErrCodeNoResults, errors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotConnected(t *testing.T) {
	service := NewService(Config{Driver: DriverRedshift, Timeout: time.Second})
	ctx := context.Background()

	assert.Error(t, service.ExecStatements(ctx, "SELECT 1"))
	assert.Error(t, service.ExecuteSQL(ctx, "SELECT 1"))
	_, err := service.QueryInt64(ctx, "SELECT 1")
	assert.Error(t, err)
	assert.NoError(t, service.Close())
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"single", "SELECT 1", 1},
		{"two", "SELECT 1; SELECT 2;", 2},
		{"semicolon in string", "INSERT INTO t VALUES ('a;b'); SELECT 1", 2},
		{"escaped semicolon", `SELECT 'x\;y'`, 1},
		{"trailing whitespace", "SELECT 1;\n\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, splitStatements(tt.sql), tt.want)
		})
	}
}

func TestCircuitBreakerSharedPerTarget(t *testing.T) {
	cfg := Config{Driver: DriverPostgres, Host: "breaker.example.com", Port: 5439, User: "u", Database: "dwh"}
	first := NewService(cfg)
	second := NewService(cfg)
	assert.Same(t, first.circuitBreaker, second.circuitBreaker)

	other := cfg
	other.Database = "staging"
	assert.NotSame(t, first.circuitBreaker, NewService(other).circuitBreaker)

	for i := 0; i < 5; i++ {
		_ = first.circuitBreaker.Execute(context.Background(), func() error { return fmt.Errorf("connection refused") })
	}
	assert.Equal(t, "open", second.circuitBreaker.GetState())

	err := NewService(cfg).Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeServiceUnavailable, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "breaker.example.com")
}
