package warehouse

import (
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/snowflakedb/gosnowflake"

	"starflow/pkg/errors"
)

// BuildDSN returns the database/sql driver name and connection string for config.
func BuildDSN(config Config) (string, string, error) {
	if err := ValidateConfig(config); err != nil {
		return "", "", err
	}

	switch config.Driver {
	case DriverRedshift, DriverPostgres:
		if config.DSN != "" {
			return "pgx", config.DSN, nil
		}
		return "pgx", postgresDSN(config), nil
	case DriverSnowflake:
		if config.DSN != "" {
			return "snowflake", config.DSN, nil
		}
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:  config.Host,
			User:     config.User,
			Password: config.Password,
			Database: config.Database,
			Schema:   config.Schema,
			Region:   config.Region,
		})
		if err != nil {
			return "", "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid Snowflake settings")
		}
		return "snowflake", dsn, nil
	case DriverDuckDB:
		if config.DSN != "" {
			return "duckdb", config.DSN, nil
		}
		// An empty path opens an in-memory database.
		return "duckdb", config.Database, nil
	}

	return "", "", errors.New(errors.ErrCodeUnsupportedDriver,
		fmt.Sprintf("Unsupported warehouse driver '%s'", config.Driver))
}

func postgresDSN(config Config) string {
	port := config.Port
	if port == 0 {
		port = 5439
	}

	parts := []string{
		"host=" + quoteDSNValue(config.Host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteDSNValue(config.Database),
		"user=" + quoteDSNValue(config.User),
		"password=" + quoteDSNValue(config.Password),
	}
	if config.Schema != "" {
		parts = append(parts, "search_path="+quoteDSNValue(config.Schema))
	}
	if config.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(config.Timeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue applies libpq keyword/value quoting.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
