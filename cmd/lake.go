package cmd

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/spf13/cobra"

	"starflow/internal/common"
	"starflow/internal/lake"
	"starflow/internal/ui"
	"starflow/pkg/errors"
)

var (
	lakeInput   string
	lakeOutput  string
	lakeWorkers int
)

var lakeCmd = &cobra.Command{
	Use:   "lake",
	Short: "Build and check the sparkify Parquet lake",
	Long: `Reshape the raw song and event JSON logs into the five star-schema
tables and write them as partitioned Parquet.

Input and output are local directories or s3:// URIs. Defaults come from the
[LAKE] section of the profile.`,
}

var lakeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Read the raw logs and write the Parquet tables",
	Args:  cobra.NoArgs,
	RunE:  runLake,
}

var lakeInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Run the data-quality checks over a local lake with DuckDB",
	Args:  cobra.NoArgs,
	RunE:  runLakeInspect,
}

func init() {
	rootCmd.AddCommand(lakeCmd)
	lakeCmd.AddCommand(lakeRunCmd, lakeInspectCmd)

	lakeRunCmd.Flags().StringVarP(&lakeInput, "input", "i", "", "raw data directory or s3:// URI (default: LAKE.INPUT)")
	lakeRunCmd.Flags().IntVarP(&lakeWorkers, "workers", "w", lake.DefaultWorkers, "files read in parallel")
	for _, c := range []*cobra.Command{lakeRunCmd, lakeInspectCmd} {
		c.Flags().StringVarP(&lakeOutput, "output", "o", "", "lake directory or s3:// URI (default: LAKE.OUTPUT)")
	}
}

func isS3(uri string) bool {
	loc, err := common.ParseURI(uri)
	return err == nil && loc.Scheme == common.SchemeS3
}

func runLake(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if lakeInput != "" {
		cfg.Lake.Input = lakeInput
	}
	if lakeOutput != "" {
		cfg.Lake.Output = lakeOutput
	}
	if err := cfg.Validate("lake"); err != nil {
		return err
	}

	job := &lake.Job{Input: cfg.Lake.Input, Output: cfg.Lake.Output, Workers: lakeWorkers}
	if isS3(job.Input) || isS3(job.Output) {
		var sess *session.Session
		if sess, err = lake.NewAWSSession(cfg.AWS, cfg.Cluster.Region); err != nil {
			return err
		}
		job.Session = sess
	}

	ui.ShowInfo(fmt.Sprintf("Building lake from %s into %s", job.Input, job.Output))
	res, err := job.Run(commandContext(cmd))
	if err != nil {
		return err
	}

	table := ui.NewTable("TABLE", "ROWS", "FILES", "PARTITIONS")
	for _, stats := range res.Tables {
		table.AddRow(stats.Table, fmt.Sprint(stats.Rows), fmt.Sprint(stats.Files), fmt.Sprint(len(stats.Partitions)))
	}
	table.Render()

	ui.ShowSuccess(fmt.Sprintf("Read %d songs and %d events in %s",
		res.Songs, res.Events, ui.FormatDuration(res.Duration)))
	return nil
}

func runLakeInspect(cmd *cobra.Command, args []string) error {
	dir := lakeOutput
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Lake.Output
	}
	if strings.TrimSpace(dir) == "" {
		return errors.ValidationError("output", dir, "no lake directory given").
			WithSuggestions("Pass --output or set OUTPUT in the [LAKE] section")
	}
	loc, err := common.ParseURI(dir)
	if err != nil {
		return err
	}
	if loc.Scheme != common.SchemeFile {
		return errors.New(errors.ErrCodeInvalidURI, "lake inspect reads local directories only").
			WithContext("output", dir)
	}

	report, err := lake.Inspect(commandContext(cmd), loc.Path)
	if err != nil {
		return err
	}
	printQualityReport(ui.Output, report)
	if err := report.Err(); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("All %d lake checks passed", len(report.Results)))
	return nil
}
