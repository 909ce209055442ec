package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"starflow/internal/config"
	"starflow/internal/dag"
	"starflow/internal/pipelines"
	"starflow/internal/ui"
	"starflow/pkg/errors"
)

var (
	dagDryRun     bool
	dagRetries    int
	dagRetryDelay time.Duration
	dagResolved   bool
	dagOutput     string
)

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "List, inspect and run the pipeline DAGs",
	Long: `Run the pipeline DAGs in-process.

Tasks run one at a time in dependency order. A failed task is retried
according to the DAG defaults; once it gives up, everything downstream of it
is marked upstream_failed and unrelated tasks still run.`,
}

var dagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available DAGs",
	Args:  cobra.NoArgs,
	RunE:  runDAGList,
}

var dagRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a DAG",
	Args:  cobra.ExactArgs(1),
	RunE:  runDAGRun,
}

var dagShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the task order and dependencies of a DAG",
	Args:  cobra.ExactArgs(1),
	RunE:  runDAGShow,
}

func init() {
	rootCmd.AddCommand(dagCmd)
	dagCmd.AddCommand(dagListCmd, dagRunCmd, dagShowCmd)

	dagRunCmd.Flags().BoolVar(&dagDryRun, "dry-run", false, "print the task order without running anything")
	dagRunCmd.Flags().IntVar(&dagRetries, "retries", 0, "override the retries of every task")
	dagRunCmd.Flags().DurationVar(&dagRetryDelay, "retry-delay", 0, "override the delay between retries")

	dagShowCmd.Flags().BoolVar(&dagResolved, "resolved", false, "also print the resolved settings as YAML")
	dagShowCmd.Flags().StringVarP(&dagOutput, "output", "o", "", "write the resolved settings to this YAML file")
}

func buildDAG(name string) (*dag.DAG, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	env := newEnv(cfg)
	d, err := pipelines.Build(name, env)
	if err != nil {
		env.Close()
		return nil, nil, err
	}
	return d, func() { env.Close() }, nil
}

func runDAGList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env := newEnv(cfg)
	defer env.Close()

	table := ui.NewTable("DAG", "DESCRIPTION", "TASKS")
	for _, name := range pipelines.Names() {
		d, err := pipelines.Build(name, env)
		if err != nil {
			return err
		}
		table.AddRow(d.ID, d.Description, fmt.Sprint(len(d.TaskIDs())))
	}
	table.Render()
	return nil
}

func runDAGRun(cmd *cobra.Command, args []string) error {
	if dagRetries < 0 {
		return errors.ValidationError("retries", dagRetries, "must not be negative")
	}
	if dagRetryDelay < 0 {
		return errors.ValidationError("retry-delay", dagRetryDelay, "must not be negative")
	}

	d, done, err := buildDAG(args[0])
	if err != nil {
		return err
	}
	defer done()

	opts := dag.RunOptions{DryRun: dagDryRun}
	if cmd.Flags().Changed("retries") || cmd.Flags().Changed("retry-delay") {
		opts.Override = true
		opts.Retries = d.Defaults.Retries
		opts.RetryDelay = d.Defaults.RetryDelay
		if cmd.Flags().Changed("retries") {
			opts.Retries = dagRetries
		}
		if cmd.Flags().Changed("retry-delay") {
			opts.RetryDelay = dagRetryDelay
		}
	}

	var progress *ui.ProgressBar
	if !dagDryRun {
		ui.ShowHeader("Running " + d.ID)
		progress = ui.NewProgressBar(len(d.TaskIDs()))
		opts.OnTaskDone = func(res dag.TaskResult) {
			progress.Update(res.TaskID, res.State == dag.StateSuccess)
		}
	}

	report, err := d.Run(commandContext(cmd), opts)
	if err != nil {
		return err
	}
	if progress != nil {
		progress.Finish()
	}

	printRunReport(ui.Output, report)
	return report.Err()
}

func runDAGShow(cmd *cobra.Command, args []string) error {
	d, done, err := buildDAG(args[0])
	if err != nil {
		return err
	}
	defer done()

	if err := d.Validate(); err != nil {
		return err
	}
	order, err := d.Order()
	if err != nil {
		return err
	}

	ui.ShowHeader(d.ID)
	ui.PrintKeyValue("Description", d.Description)
	ui.PrintKeyValue("Retries", fmt.Sprint(d.Defaults.Retries))
	ui.PrintKeyValue("Retry delay", d.Defaults.RetryDelay.String())
	fmt.Fprintln(ui.Output)

	table := ui.NewTable("#", "TASK", "UPSTREAM")
	for i, id := range order {
		upstream := strings.Join(d.Upstream(id), ", ")
		if upstream == "" {
			upstream = "-"
		}
		table.AddRow(fmt.Sprint(i+1), id, upstream)
	}
	table.Render()

	if !dagResolved && dagOutput == "" {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dagOutput != "" {
		if err := config.SaveYAML(dagOutput, cfg); err != nil {
			return err
		}
		ui.ShowSuccess("Resolved settings written to " + dagOutput)
		return nil
	}
	out, err := config.MarshalYAML(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Output, "\n%s", out)
	return nil
}
