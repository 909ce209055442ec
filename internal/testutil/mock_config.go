package testutil

import (
	"starflow/pkg/models"
)

// ConfigBuilder helps build profiles for tests
type ConfigBuilder struct {
	config *models.Config
}

// NewConfigBuilder starts from an empty profile
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: &models.Config{}}
}

// WithCluster sets the [CLUSTER] section
func (b *ConfigBuilder) WithCluster(driver, host, db, user, password string) *ConfigBuilder {
	b.config.Cluster = models.Cluster{
		Driver:     driver,
		Host:       host,
		DBName:     db,
		DBUser:     user,
		DBPassword: password,
		DBPort:     5439,
	}
	b.config.Warehouse.Driver = driver
	return b
}

// WithConnection adds a named connection
func (b *ConfigBuilder) WithConnection(id string, cl models.Cluster) *ConfigBuilder {
	if b.config.Connections == nil {
		b.config.Connections = map[string]models.Cluster{}
	}
	b.config.Connections[id] = cl
	return b
}

// WithSources sets the [S3] and [IAM_ROLE] sections used by COPY
func (b *ConfigBuilder) WithSources(arn, logData, jsonPath, songData string) *ConfigBuilder {
	b.config.IAMRole.ARN = arn
	b.config.S3.LogData = logData
	b.config.S3.LogJSONPath = jsonPath
	b.config.S3.SongData = songData
	return b
}

// WithGCP sets the [GCP] section
func (b *ConfigBuilder) WithGCP(project, keyPath string) *ConfigBuilder {
	b.config.GCP.Project = project
	b.config.GCP.ServiceAccountPath = keyPath
	return b
}

// WithLake sets the [LAKE] section
func (b *ConfigBuilder) WithLake(input, output string) *ConfigBuilder {
	b.config.Lake = models.Lake{Input: input, Output: output}
	return b
}

// WithVariable sets a runtime variable
func (b *ConfigBuilder) WithVariable(name, value string) *ConfigBuilder {
	if b.config.Variables == nil {
		b.config.Variables = map[string]string{}
	}
	b.config.Variables[name] = value
	return b
}

// Build returns the profile
func (b *ConfigBuilder) Build() *models.Config {
	return b.config
}

// SparkifyConfig is a profile that passes every validation.
func SparkifyConfig() *models.Config {
	return NewConfigBuilder().
		WithCluster("redshift", "sparkify.abc123.us-west-2.redshift.amazonaws.com", "dev", "awsuser", "Passw0rd").
		WithSources("arn:aws:iam::123456789012:role/dwhRole",
			"s3://udacity-dend/log_data",
			"s3://udacity-dend/log_json_path.json",
			"s3://udacity-dend/song_data").
		WithGCP("movies-123", "/keys/sa.json").
		WithLake("s3a://udacity-dend/", "./lake").
		Build()
}
