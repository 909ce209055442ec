package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"starflow/internal/operators"
	"starflow/internal/quality"
	"starflow/internal/sqlcatalog"
	"starflow/internal/ui"
	"starflow/pkg/errors"
)

// Check suites
const (
	suiteSparkify = "sparkify"
	suiteMovies   = "movies"
)

var (
	qualityTarget string
	qualityConnID string
	qualitySuite  string
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Data-quality checks",
}

var qualityRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the count checks against the warehouse or BigQuery",
	Args:  cobra.NoArgs,
	RunE:  runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
	qualityCmd.AddCommand(qualityRunCmd)

	qualityRunCmd.Flags().StringVar(&qualityTarget, "target", operators.TargetWarehouse, "warehouse or bigquery")
	qualityRunCmd.Flags().StringVar(&qualityConnID, "conn-id", "", "warehouse connection id (default: redshift)")
	qualityRunCmd.Flags().StringVar(&qualitySuite, "suite", "", "sparkify or movies (default depends on --target)")
}

func qualityChecks(suite string) ([]quality.Check, error) {
	switch suite {
	case suiteSparkify:
		return quality.SparkifyChecks(), nil
	case suiteMovies:
		return quality.MovieChecks(sqlcatalog.AnalyticsSchemaName), nil
	default:
		return nil, errors.ValidationError("suite", suite, "must be 'sparkify' or 'movies'")
	}
}

func runQuality(cmd *cobra.Command, args []string) error {
	target := strings.ToLower(qualityTarget)
	suite := strings.ToLower(qualitySuite)

	var concern string
	switch target {
	case operators.TargetWarehouse:
		concern = "cluster"
		if suite == "" {
			suite = suiteSparkify
		}
	case operators.TargetBigQuery:
		concern = "bigquery"
		if suite == "" {
			suite = suiteMovies
		}
	default:
		return errors.ValidationError("target", qualityTarget, "must be 'warehouse' or 'bigquery'")
	}

	checks, err := qualityChecks(suite)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(concern)
	if err != nil {
		return err
	}

	env := newEnv(cfg)
	defer env.Close()

	ctx := commandContext(cmd)
	var q quality.Querier
	if target == operators.TargetBigQuery {
		client, err := env.BigQueryClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		q = client
	} else {
		svc, err := env.Connections.Get(ctx, qualityConnID)
		if err != nil {
			return err
		}
		q = svc
	}

	report := quality.Run(ctx, q, checks)
	printQualityReport(ui.Output, report)
	if err := report.Err(); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("All %d %s checks passed", len(report.Results), suite))
	return nil
}
