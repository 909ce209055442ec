package dag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"starflow/internal/observability"
	"starflow/pkg/errors"
)

// State of a task after a run.
type State string

const (
	StateSuccess        State = "success"
	StateFailed         State = "failed"
	StateUpstreamFailed State = "upstream_failed"
	StateSkipped        State = "skipped"
	StatePlanned        State = "planned"
)

// TaskResult is the outcome of one task.
type TaskResult struct {
	TaskID   string
	State    State
	Attempts int
	Duration time.Duration
	Err      error
}

// RunReport is the outcome of a DAG run.
type RunReport struct {
	DAGID string
	Start time.Time
	End   time.Time
	Tasks []TaskResult
}

// Failed returns the tasks that did not succeed.
func (r *RunReport) Failed() []TaskResult {
	var failed []TaskResult
	for _, t := range r.Tasks {
		if t.State == StateFailed || t.State == StateUpstreamFailed || t.State == StateSkipped {
			failed = append(failed, t)
		}
	}
	return failed
}

// Err is nil when every task succeeded.
func (r *RunReport) Err() error {
	var failed []string
	var first error
	for _, t := range r.Tasks {
		if t.State != StateFailed {
			continue
		}
		failed = append(failed, t.TaskID)
		if first == nil {
			first = t.Err
		}
	}
	if len(failed) == 0 {
		if len(r.Failed()) > 0 {
			return errors.New(errors.ErrCodeTaskFailed, fmt.Sprintf("DAG %s did not finish", r.DAGID))
		}
		return nil
	}
	return errors.Wrap(first, errors.ErrCodeTaskFailed,
		fmt.Sprintf("DAG %s failed: %s", r.DAGID, strings.Join(failed, ", "))).
		WithContext("dag", r.DAGID)
}

// RunOptions tune a run.
type RunOptions struct {
	// DryRun reports the order without executing anything.
	DryRun bool
	// Retries and RetryDelay override the DAG defaults when Override is set.
	Override   bool
	Retries    int
	RetryDelay time.Duration
	// OnTaskDone is called after every task, in order.
	OnTaskDone func(TaskResult)
}

// DryRun returns the planned order.
func (d *DAG) DryRun() (*RunReport, error) {
	return d.Run(context.Background(), RunOptions{DryRun: true})
}

// Run executes every task in order. A failed task marks everything
// downstream of it upstream_failed; unrelated tasks still run.
func (d *DAG) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	order, err := d.Order()
	if err != nil {
		return nil, err
	}

	logger := observability.GetDefaultLogger().WithField("dag", d.ID)
	report := &RunReport{DAGID: d.ID, Start: time.Now()}
	states := make(map[string]State, len(order))

	retries, delay := d.Defaults.Retries, d.Defaults.RetryDelay
	if opts.Override {
		retries, delay = opts.Retries, opts.RetryDelay
	}

	for _, id := range order {
		result := TaskResult{TaskID: id}

		switch {
		case opts.DryRun:
			result.State = StatePlanned
		case ctx.Err() != nil:
			result.State = StateSkipped
			result.Err = ctx.Err()
		case d.blocked(id, states):
			result.State = StateUpstreamFailed
			logger.WarnWithFields("Skipping task", map[string]interface{}{"task": id, "state": result.State})
		default:
			result = d.runTask(ctx, id, retries, delay, logger)
		}

		states[id] = result.State
		report.Tasks = append(report.Tasks, result)
		if opts.OnTaskDone != nil {
			opts.OnTaskDone(result)
		}
	}

	report.End = time.Now()
	return report, nil
}

func (d *DAG) blocked(id string, states map[string]State) bool {
	for _, up := range d.upstream[id] {
		switch states[up] {
		case StateFailed, StateUpstreamFailed, StateSkipped:
			return true
		}
	}
	return false
}

func (d *DAG) runTask(ctx context.Context, id string, retries int, delay time.Duration, logger *observability.Logger) TaskResult {
	task, _ := d.Task(id)
	result := TaskResult{TaskID: id}
	start := time.Now()

	cfg := errors.FixedRetryConfig(retries, delay)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.WarnWithFields("Task failed, retrying", map[string]interface{}{
			"task":    id,
			"attempt": attempt,
			"delay":   wait,
			"error":   err,
		})
	}

	logger.InfoWithFields("Running task", map[string]interface{}{"task": id})
	err := errors.Retry(ctx, cfg, func(ctx context.Context) error {
		result.Attempts++
		return task.Execute(ctx)
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.State = StateFailed
		result.Err = errors.TaskError(id, result.Attempts, err)
		logger.ErrorWithFields("Task failed", map[string]interface{}{
			"task":     id,
			"attempts": result.Attempts,
			"duration": result.Duration,
			"error":    err,
		})
		return result
	}

	result.State = StateSuccess
	logger.InfoWithFields("Task succeeded", map[string]interface{}{
		"task":     id,
		"attempts": result.Attempts,
		"duration": result.Duration,
	})
	return result
}
