package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"starflow/internal/dag"
	"starflow/internal/operators"
	"starflow/internal/quality"
	"starflow/internal/ui"
)

// runTasks runs ops one after another as an ad-hoc DAG without retries
// and prints the task table.
func runTasks(cmd *cobra.Command, id string, ops ...operators.Operator) error {
	d := dag.New(id, "", dag.DefaultArgs()).Chain(ops...)
	report, err := d.Run(commandContext(cmd), dag.RunOptions{Override: true})
	if err != nil {
		return err
	}
	printRunReport(ui.Output, report)
	return report.Err()
}

func printRunReport(w io.Writer, report *dag.RunReport) {
	rows := make([][]string, 0, len(report.Tasks))
	for _, t := range report.Tasks {
		attempts := "-"
		if t.Attempts > 0 {
			attempts = fmt.Sprint(t.Attempts)
		}
		rows = append(rows, []string{t.TaskID, ui.Status(string(t.State)), attempts, ui.FormatDuration(t.Duration)})
	}
	ui.RenderTable(w, []string{"TASK", "STATE", "ATTEMPTS", "DURATION"}, rows)
}

func printQualityReport(w io.Writer, report quality.Report) {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		state := "passed"
		switch {
		case res.Err != nil:
			state = "errored"
		case !res.Passed:
			state = "failed"
		}
		rows = append(rows, []string{
			res.Check.Name,
			fmt.Sprint(res.Value),
			res.Check.Expect.String(),
			ui.Status(state),
		})
	}
	ui.RenderTable(w, []string{"CHECK", "VALUE", "EXPECT", "RESULT"}, rows)
}
