package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"starflow/internal/common"
	apperrors "starflow/pkg/errors"
	"starflow/pkg/models"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the profile when --config is not given
	EnvConfig = "STARFLOW_CONFIG"
	envPrefix = "STARFLOW"

	// KeyringService is the OS keyring service that stores cluster passwords
	KeyringService = "starflow"
	// KeyringMarker as DB_PASSWORD means "read the password from the keyring"
	KeyringMarker = "keyring"

	defaultPort     = 5439
	defaultRegion   = "us-west-2"
	defaultLocation = "US"
)

// DefaultProfiles are tried in order when no profile is named
var DefaultProfiles = []string{"dwh.cfg", "aws.cfg", "dl.cfg"}

// ResolvePath picks the profile to load: the flag value, then STARFLOW_CONFIG,
// then the first default profile present in the working directory.
func ResolvePath(flagValue string) (string, error) {
	candidate := flagValue
	if candidate == "" {
		candidate = os.Getenv(EnvConfig)
	}
	if candidate != "" {
		cleaned, err := common.CleanPath(candidate)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "Invalid config path")
		}
		if _, err := os.Stat(cleaned); err != nil {
			return "", apperrors.New(apperrors.ErrCodeConfigNotFound,
				fmt.Sprintf("Config file %s not found", cleaned)).
				WithContext("path", cleaned)
		}
		return cleaned, nil
	}

	for _, name := range DefaultProfiles {
		if _, err := os.Stat(name); err == nil {
			return common.CleanPath(name)
		}
	}

	return "", apperrors.New(apperrors.ErrCodeConfigNotFound, "No profile found").
		WithSuggestions(
			fmt.Sprintf("Pass --config or set %s", EnvConfig),
			fmt.Sprintf("Create one of %s in the working directory", strings.Join(DefaultProfiles, ", ")),
			"Run 'starflow setup'",
		)
}

// Load reads a profile with viper, applies STARFLOW_<SECTION>_<KEY>
// environment overrides and resolves keyring passwords.
func Load(path string) (*models.Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("Failed to read profile %s", path)).
			WithContext("path", path)
	}
	return FromViper(v)
}

// LoadOptional is Load for commands that can run without a profile.
func LoadOptional(flagValue string) (*models.Config, string, error) {
	path, err := ResolvePath(flagValue)
	if err != nil {
		if apperrors.GetErrorCode(err) == apperrors.ErrCodeConfigNotFound && flagValue == "" {
			cfg, ferr := FromViper(newViper())
			return cfg, "", ferr
		}
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("ini")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cluster.db_port", defaultPort)
	v.SetDefault("cluster.region", defaultRegion)
	v.SetDefault("gcp.location", defaultLocation)
	v.SetDefault("warehouse.driver", "redshift")
	return v
}

// FromViper builds the typed config from an already loaded viper instance.
func FromViper(v *viper.Viper) (*models.Config, error) {
	cfg := &models.Config{
		Cluster: clusterFrom(v, "cluster"),
		IAMRole: models.IAMRole{ARN: v.GetString("iam_role.arn")},
		S3: models.S3{
			LogData:     v.GetString("s3.log_data"),
			LogJSONPath: v.GetString("s3.log_jsonpath"),
			SongData:    v.GetString("s3.song_data"),
			IMDBBucket:  v.GetString("s3.imdb_bucket"),
			MLBucket:    v.GetString("s3.ml_bucket"),
			TMDBBucket:  v.GetString("s3.tmdb_bucket"),
		},
		GCP: models.GCP{
			Project:            v.GetString("gcp.project"),
			ServiceAccountPath: v.GetString("gcp.service_account_path"),
			Location:           v.GetString("gcp.location"),
			Bucket:             v.GetString("gcp.bucket"),
		},
		AWS: models.AWSCredentials{
			AccessKeyID:     firstNonEmpty(v.GetString("default.aws_access_key_id"), v.GetString("aws_access_key_id")),
			SecretAccessKey: firstNonEmpty(v.GetString("default.aws_secret_access_key"), v.GetString("aws_secret_access_key")),
		},
		Lake: models.Lake{
			Input:  v.GetString("lake.input"),
			Output: v.GetString("lake.output"),
		},
		Warehouse:   models.Warehouse{Driver: v.GetString("warehouse.driver")},
		Connections: make(map[string]models.Cluster),
		Variables:   make(map[string]string),
	}

	for _, id := range subKeys(v, "connections") {
		cl := clusterFrom(v, "connections."+id)
		if cl.Driver == "" {
			cl.Driver = cfg.Warehouse.Driver
		}
		cfg.Connections[id] = cl
	}
	for _, name := range subKeys(v, "variables") {
		cfg.Variables[name] = v.GetString("variables." + name)
	}

	if err := resolvePasswords(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clusterFrom(v *viper.Viper, prefix string) models.Cluster {
	port := v.GetInt(prefix + ".db_port")
	if port == 0 {
		port = defaultPort
	}
	region := v.GetString(prefix + ".region")
	if region == "" {
		region = defaultRegion
	}
	return models.Cluster{
		Host:       v.GetString(prefix + ".host"),
		DBName:     v.GetString(prefix + ".db_name"),
		DBUser:     v.GetString(prefix + ".db_user"),
		DBPassword: v.GetString(prefix + ".db_password"),
		DBPort:     port,
		Region:     region,
		Driver:     v.GetString(prefix + ".driver"),
	}
}

// subKeys lists the distinct names directly below prefix, sorted.
func subKeys(v *viper.Viper, prefix string) []string {
	seen := make(map[string]bool)
	for _, key := range v.AllKeys() {
		rest, ok := strings.CutPrefix(key, prefix+".")
		if !ok {
			continue
		}
		idx := strings.LastIndex(rest, ".")
		name := rest
		if prefix == "connections" {
			if idx < 0 {
				continue
			}
			name = rest[:idx]
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolvePasswords(cfg *models.Config) error {
	resolve := func(cl *models.Cluster) error {
		if !strings.EqualFold(cl.DBPassword, KeyringMarker) {
			return nil
		}
		secret, err := keyring.Get(KeyringService, KeyringAccount(cl.Host, cl.DBUser))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeCredentials,
				"Failed to read the cluster password from the OS keyring").
				WithContext("account", KeyringAccount(cl.Host, cl.DBUser)).
				WithSuggestions("Run 'starflow setup' and choose to store the password in the keyring")
		}
		cl.DBPassword = secret
		return nil
	}

	if err := resolve(&cfg.Cluster); err != nil {
		return err
	}
	for id, cl := range cfg.Connections {
		if err := resolve(&cl); err != nil {
			return err
		}
		cfg.Connections[id] = cl
	}
	return nil
}

// KeyringAccount is the keyring account name for a cluster login.
func KeyringAccount(host, user string) string {
	return host + "/" + user
}

// StorePassword saves a cluster password in the OS keyring.
func StorePassword(host, user, password string) error {
	if err := keyring.Set(KeyringService, KeyringAccount(host, user), password); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCredentials, "Failed to store the password in the OS keyring")
	}
	return nil
}

// SaveOptions controls how secrets are written by Save.
type SaveOptions struct {
	// UseKeyring stores DB_PASSWORD in the OS keyring and writes the marker instead.
	UseKeyring bool
}

// Save writes cfg as an INI profile.
func Save(path string, cfg *models.Config, opts SaveOptions) error {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Invalid profile path")
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), common.DirPermissionSecure); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to create profile directory")
	}

	password := cfg.Cluster.DBPassword
	if opts.UseKeyring && password != "" {
		if err := StorePassword(cfg.Cluster.Host, cfg.Cluster.DBUser, password); err != nil {
			return err
		}
		password = KeyringMarker
	}

	v := viper.New()
	v.SetConfigType("ini")
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}

	set("cluster.host", cfg.Cluster.Host)
	set("cluster.db_name", cfg.Cluster.DBName)
	set("cluster.db_user", cfg.Cluster.DBUser)
	set("cluster.db_password", password)
	if cfg.Cluster.DBPort != 0 {
		set("cluster.db_port", fmt.Sprint(cfg.Cluster.DBPort))
	}
	set("cluster.region", cfg.Cluster.Region)
	set("iam_role.arn", cfg.IAMRole.ARN)
	set("s3.log_data", cfg.S3.LogData)
	set("s3.log_jsonpath", cfg.S3.LogJSONPath)
	set("s3.song_data", cfg.S3.SongData)
	set("s3.imdb_bucket", cfg.S3.IMDBBucket)
	set("s3.ml_bucket", cfg.S3.MLBucket)
	set("s3.tmdb_bucket", cfg.S3.TMDBBucket)
	set("gcp.project", cfg.GCP.Project)
	set("gcp.service_account_path", cfg.GCP.ServiceAccountPath)
	set("gcp.location", cfg.GCP.Location)
	set("gcp.bucket", cfg.GCP.Bucket)
	set("lake.input", cfg.Lake.Input)
	set("lake.output", cfg.Lake.Output)
	set("warehouse.driver", cfg.Warehouse.Driver)
	for name, value := range cfg.Variables {
		set("variables."+name, value)
	}

	if err := v.WriteConfigAs(cleaned); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to write profile").
			WithContext("path", cleaned)
	}
	return os.Chmod(cleaned, common.FilePermissionSecure)
}

// SaveYAML writes the resolved settings as YAML. Secrets are never written.
func SaveYAML(path string, cfg *models.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to marshal config")
	}
	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to write YAML config").
			WithContext("path", path)
	}
	return nil
}

// MarshalYAML renders the resolved settings for display.
func MarshalYAML(cfg *models.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
