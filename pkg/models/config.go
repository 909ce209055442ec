package models

import (
	"fmt"
	"strings"

	apperrors "starflow/pkg/errors"
)

// Config is the typed view of one INI profile (dwh.cfg, aws.cfg, dl.cfg).
type Config struct {
	Cluster     Cluster              `yaml:"cluster"`
	IAMRole     IAMRole              `yaml:"iam_role"`
	S3          S3                   `yaml:"s3"`
	GCP         GCP                  `yaml:"gcp"`
	AWS         AWSCredentials       `yaml:"aws"`
	Lake        Lake                 `yaml:"lake"`
	Warehouse   Warehouse            `yaml:"warehouse"`
	Connections map[string]Cluster   `yaml:"connections,omitempty"`
	Variables   map[string]string    `yaml:"variables,omitempty"`
}

// Cluster holds the [CLUSTER] section
type Cluster struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"-"`
	DBPort     int    `yaml:"db_port"`
	Region     string `yaml:"region"`
	Driver     string `yaml:"driver,omitempty"` // redshift, postgres, snowflake, duckdb
}

type IAMRole struct {
	ARN string `yaml:"arn"`
}

// S3 holds the source paths used by COPY statements
type S3 struct {
	LogData     string `yaml:"log_data"`
	LogJSONPath string `yaml:"log_jsonpath"`
	SongData    string `yaml:"song_data"`
	IMDBBucket  string `yaml:"imdb_bucket"`
	MLBucket    string `yaml:"ml_bucket"`
	TMDBBucket  string `yaml:"tmdb_bucket"`
}

// GCP holds BigQuery settings
type GCP struct {
	Project            string `yaml:"project"`
	ServiceAccountPath string `yaml:"service_account_path"`
	Location           string `yaml:"location"`
	Bucket             string `yaml:"bucket"`
}

// AWSCredentials holds the [default] section of aws.cfg / dl.cfg
type AWSCredentials struct {
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type Lake struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

type Warehouse struct {
	Driver string `yaml:"driver"`
}

// Connection returns the cluster profile for a connection id. Unknown ids
// fall back to the [CLUSTER] section when id is the default one.
func (c *Config) Connection(id string) (Cluster, error) {
	if cl, ok := c.Connections[id]; ok {
		return cl, nil
	}
	if id == "" || id == DefaultConnID {
		cl := c.Cluster
		if cl.Driver == "" {
			cl.Driver = c.Warehouse.Driver
		}
		return cl, nil
	}
	return Cluster{}, apperrors.New(apperrors.ErrCodeUnknownConnID,
		fmt.Sprintf("Unknown connection id '%s'", id)).
		WithContext("conn_id", id).
		WithSuggestions(fmt.Sprintf("Add a [connections.%s] section to the profile", id))
}

// Variable resolves a named runtime variable.
func (c *Config) Variable(name string) (string, error) {
	if v, ok := c.Variables[name]; ok && v != "" {
		return v, nil
	}
	if name == ServiceAccountPathVar && c.GCP.ServiceAccountPath != "" {
		return c.GCP.ServiceAccountPath, nil
	}
	return "", apperrors.New(apperrors.ErrCodeUnknownVariable,
		fmt.Sprintf("Variable '%s' is not set", name)).
		WithContext("variable", name).
		WithSuggestions(fmt.Sprintf("Set variables.%s or the matching [GCP] key", name))
}

const (
	DefaultConnID         = "redshift"
	ServiceAccountPathVar = "service_account_path"
)

// Validate checks the fields required by the given concern: "cluster",
// "sparkify", "movies-redshift", "bigquery" or "lake".
func (c *Config) Validate(concern string) error {
	var missing []string
	require := func(value, field string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	switch concern {
	case "cluster":
		require(c.Cluster.Host, "CLUSTER.HOST")
		require(c.Cluster.DBName, "CLUSTER.DB_NAME")
		require(c.Cluster.DBUser, "CLUSTER.DB_USER")
	case "sparkify":
		require(c.Cluster.Host, "CLUSTER.HOST")
		require(c.Cluster.DBName, "CLUSTER.DB_NAME")
		require(c.Cluster.DBUser, "CLUSTER.DB_USER")
		require(c.IAMRole.ARN, "IAM_ROLE.ARN")
		require(c.S3.LogData, "S3.LOG_DATA")
		require(c.S3.LogJSONPath, "S3.LOG_JSONPATH")
		require(c.S3.SongData, "S3.SONG_DATA")
	case "movies-redshift":
		require(c.Cluster.Host, "CLUSTER.HOST")
		require(c.IAMRole.ARN, "IAM_ROLE.ARN")
		require(c.S3.IMDBBucket, "S3.IMDB_BUCKET")
		require(c.S3.MLBucket, "S3.ML_BUCKET")
		require(c.S3.TMDBBucket, "S3.TMDB_BUCKET")
	case "bigquery":
		require(c.GCP.Project, "GCP.PROJECT")
		keyPath, _ := c.Variable(ServiceAccountPathVar)
		require(keyPath, "GCP.SERVICE_ACCOUNT_PATH")
	case "lake":
		require(c.Lake.Input, "LAKE.INPUT")
		require(c.Lake.Output, "LAKE.OUTPUT")
	default:
		return apperrors.ValidationError("concern", concern, "unknown configuration concern")
	}

	if len(missing) == 0 {
		return nil
	}
	return apperrors.ConfigError(
		fmt.Sprintf("Missing required settings: %s", strings.Join(missing, ", ")),
		missing[0],
	).WithCode(apperrors.ErrCodeConfigMissing).WithDetails(missing...)
}
