package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"starflow/internal/operators"
	"starflow/internal/sqlcatalog"
	"starflow/internal/ui"
	"starflow/pkg/errors"
)

var (
	dwhYes      bool
	dwhConnID   string
	dwhExecFile string
)

// confirm is replaced in tests.
var confirm = ui.Confirm

var dwhCmd = &cobra.Command{
	Use:   "dwh",
	Short: "Build the sparkify warehouse on Redshift",
	Long: `Create the sparkify staging and star-schema tables and load them.

create-tables drops and recreates every table. etl copies the raw song and
event logs from S3 into staging and fills the star schema from there. exec
runs a SQL script of your own, such as a vacuum or a backfill.`,
}

var dwhCreateTablesCmd = &cobra.Command{
	Use:   "create-tables",
	Short: "Drop and recreate all sparkify tables",
	Args:  cobra.NoArgs,
	RunE:  runCreateTables,
}

var dwhETLCmd = &cobra.Command{
	Use:   "etl",
	Short: "Copy the raw logs into staging and load the star schema",
	Args:  cobra.NoArgs,
	RunE:  runETL,
}

var dwhExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a SQL script in one transaction",
	Args:  cobra.NoArgs,
	RunE:  runDWHExec,
}

func init() {
	rootCmd.AddCommand(dwhCmd)
	dwhCmd.AddCommand(dwhCreateTablesCmd)
	dwhCmd.AddCommand(dwhETLCmd)
	dwhCmd.AddCommand(dwhExecCmd)

	dwhCmd.PersistentFlags().StringVar(&dwhConnID, "conn-id", "", "connection id (default: redshift)")
	dwhCreateTablesCmd.Flags().BoolVarP(&dwhYes, "yes", "y", false, "skip the confirmation prompt")
	dwhExecCmd.Flags().StringVarP(&dwhExecFile, "file", "f", "", "SQL script to run (required)")
	_ = dwhExecCmd.MarkFlagRequired("file")
}

func runCreateTables(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("cluster")
	if err != nil {
		return err
	}

	if !dwhYes {
		ok, err := confirm(fmt.Sprintf("Drop and recreate all sparkify tables on %s?", cfg.Cluster.Host), false)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "Confirmation failed")
		}
		if !ok {
			ui.ShowInfo("Nothing changed")
			return nil
		}
	}

	env := newEnv(cfg)
	defer env.Close()

	ctx := commandContext(cmd)
	svc, err := env.Connections.Get(ctx, dwhConnID)
	if err != nil {
		return err
	}

	catalog := sqlcatalog.Sparkify(cfg)
	start := time.Now()
	if err := svc.ExecStatements(ctx, catalog.Drop...); err != nil {
		return err
	}
	if err := svc.ExecStatements(ctx, catalog.Create...); err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Dropped %d and created %d tables in %s",
		len(catalog.Drop), len(catalog.Create), ui.FormatDuration(time.Since(start))))
	return nil
}

func runETL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("sparkify")
	if err != nil {
		return err
	}

	env := newEnv(cfg)
	defer env.Close()

	ctx := commandContext(cmd)
	svc, err := env.Connections.Get(ctx, dwhConnID)
	if err != nil {
		return err
	}

	catalog := sqlcatalog.Sparkify(cfg)
	steps := []struct {
		name       string
		statements []string
	}{
		{"Copy into staging", catalog.Copy},
		{"Insert into star schema", catalog.Insert},
	}

	for _, step := range steps {
		spinner := ui.NewSpinner(step.name)
		spinner.Start()
		start := time.Now()
		if err := svc.ExecStatements(ctx, step.statements...); err != nil {
			spinner.Stop(false, step.name+" failed")
			return err
		}
		spinner.Stop(true, fmt.Sprintf("%s: %d statements in %s",
			step.name, len(step.statements), ui.FormatDuration(time.Since(start))))
	}

	ui.ShowSuccess("Sparkify warehouse loaded")
	return nil
}

func runDWHExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("cluster")
	if err != nil {
		return err
	}
	env := newEnv(cfg)
	defer env.Close()

	name := strings.TrimSuffix(filepath.Base(dwhExecFile), filepath.Ext(dwhExecFile))
	return runTasks(cmd, "dwh_exec", &operators.ExecSQL{
		TaskID: "exec_" + name,
		ConnID: dwhConnID,
		File:   dwhExecFile,
		Env:    env,
	})
}
