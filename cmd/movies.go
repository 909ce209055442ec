package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"starflow/internal/operators"
	"starflow/internal/sqlcatalog"
	"starflow/internal/staging"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

// Staging backends
const (
	backendBigQuery = "bigquery"
	backendRedshift = "redshift"
)

var (
	moviesSource  string
	moviesBackend string
	moviesTable   string
	moviesConnID  string
)

var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "Stage the movie sources and build the analytics tables",
	Long: `Stage the IMDB, MovieLens, TMDB and awards dumps and build the movie
analytics star schema.

BigQuery is the main target. The Redshift backend stages the same sources
into per-source schemas and creates the analytics schema there.`,
}

var moviesDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Create the BigQuery datasets",
	Args:  cobra.NoArgs,
	RunE:  runMoviesDatasets,
}

var moviesStageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Load one raw source into its staging tables",
	Args:  cobra.NoArgs,
	RunE:  runMoviesStage,
}

var moviesAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Rebuild the BigQuery analytics tables in dependency order",
	Args:  cobra.NoArgs,
	RunE:  runMoviesAnalytics,
}

var moviesSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Reset the Redshift analytics schema and create its tables",
	Args:  cobra.NoArgs,
	RunE:  runMoviesSchema,
}

func init() {
	rootCmd.AddCommand(moviesCmd)
	moviesCmd.AddCommand(moviesDatasetsCmd, moviesStageCmd, moviesAnalyticsCmd, moviesSchemaCmd)

	moviesStageCmd.Flags().StringVarP(&moviesSource, "source", "s", "", "source: "+strings.Join(staging.Names(), ", "))
	moviesStageCmd.Flags().StringVarP(&moviesBackend, "backend", "b", backendBigQuery, "bigquery or redshift")
	_ = moviesStageCmd.MarkFlagRequired("source")
	moviesAnalyticsCmd.Flags().StringVarP(&moviesTable, "table", "t", "", "rebuild only this table: "+strings.Join(sqlcatalog.AnalyticsTableNames, ", "))
	for _, c := range []*cobra.Command{moviesStageCmd, moviesSchemaCmd} {
		c.Flags().StringVar(&moviesConnID, "conn-id", "", "Redshift connection id (default: redshift)")
	}
}

func runMoviesDatasets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("bigquery")
	if err != nil {
		return err
	}
	env := newEnv(cfg)
	defer env.Close()

	return runTasks(cmd, "movies_datasets", &operators.CreateDatasets{
		TaskID:   "create_datasets",
		Datasets: staging.Datasets,
		Env:      env,
	})
}

func runMoviesStage(cmd *cobra.Command, args []string) error {
	switch strings.ToLower(moviesBackend) {
	case backendBigQuery:
		return stageBigQuery(cmd)
	case backendRedshift:
		return stageRedshift(cmd)
	default:
		return errors.ValidationError("backend", moviesBackend, "must be 'bigquery' or 'redshift'")
	}
}

func stageBigQuery(cmd *cobra.Command) error {
	cfg, err := loadConfig("bigquery")
	if err != nil {
		return err
	}
	specs, err := staging.Source(moviesSource, cfg.GCP.Bucket)
	if err != nil {
		return err
	}

	env := newEnv(cfg)
	defer env.Close()

	ops := make([]operators.Operator, 0, len(specs))
	for _, spec := range specs {
		ops = append(ops, &operators.StageBigquery{
			TaskID: fmt.Sprintf("stage_%s_%s", spec.Dataset, spec.Table),
			Spec:   spec,
			Env:    env,
		})
	}
	return runTasks(cmd, "movies_stage_"+strings.ToLower(moviesSource), ops...)
}

var redshiftStaging = map[string]func(*models.Config) sqlcatalog.StagingSchema{
	staging.SourceIMDB: sqlcatalog.IMDBStaging,
	staging.SourceML:   sqlcatalog.MovieLensStaging,
	staging.SourceTMDB: sqlcatalog.TMDBStaging,
}

func stageRedshift(cmd *cobra.Command) error {
	build, ok := redshiftStaging[strings.ToLower(moviesSource)]
	if !ok {
		return errors.ValidationError("source", moviesSource, "no Redshift staging for this source").
			WithSuggestions("Use one of: imdb, ml, tmdb")
	}

	cfg, err := loadConfig("movies-redshift")
	if err != nil {
		return err
	}
	env := newEnv(cfg)
	defer env.Close()

	schema := build(cfg)
	return runTasks(cmd, "movies_stage_redshift", &operators.ExecSQL{
		TaskID:     "stage_" + schema.Schema,
		ConnID:     moviesConnID,
		Statements: schema.Statements(),
		Env:        env,
	})
}

func runMoviesAnalytics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("bigquery")
	if err != nil {
		return err
	}

	tables := sqlcatalog.MovieAnalytics(cfg.GCP.Project)
	if moviesTable != "" {
		table, ok := sqlcatalog.FindAnalyticsTable(cfg.GCP.Project, moviesTable)
		if !ok {
			return errors.ValidationError("table", moviesTable, "unknown analytics table").
				WithSuggestions("Use one of: " + strings.Join(sqlcatalog.AnalyticsTableNames, ", "))
		}
		tables = []sqlcatalog.AnalyticsTable{table}
	}

	env := newEnv(cfg)
	defer env.Close()

	ops := make([]operators.Operator, 0, len(tables))
	for _, table := range tables {
		ops = append(ops, &operators.BuildAnalyticsTable{
			TaskID: "analytics_" + table.Name,
			Table:  table,
			Env:    env,
		})
	}
	return runTasks(cmd, "movies_analytics", ops...)
}

func runMoviesSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("cluster")
	if err != nil {
		return err
	}
	env := newEnv(cfg)
	defer env.Close()

	return runTasks(cmd, "movies_schema", &operators.ResetSchema{
		TaskID: "create_analytics_schema",
		ConnID: moviesConnID,
		Schema: sqlcatalog.AnalyticsSchemaName,
		Tables: sqlcatalog.AnalyticsTables(),
		Env:    env,
	})
}
