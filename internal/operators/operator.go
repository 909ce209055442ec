// Package operators holds the task operators that DAGs are built from. An
// operator does one unit of warehouse work, blocks until it is done and
// reports failure as an error. Operators never retry; the DAG runner does.
package operators

import (
	"context"
	"time"

	"starflow/internal/observability"
)

// Operator is a single DAG task.
type Operator interface {
	ID() string
	Execute(ctx context.Context) error
}

// Dummy does nothing. It marks the start and end of a DAG.
type Dummy struct {
	TaskID string
}

func (d *Dummy) ID() string { return d.TaskID }

func (d *Dummy) Execute(ctx context.Context) error {
	return ctx.Err()
}

// taskLogger returns the logger every operator reports through.
func taskLogger(task string) *observability.Logger {
	return observability.GetDefaultLogger().WithField("task", task)
}

func logDone(logger *observability.Logger, msg, table string, rows interface{}, start time.Time) {
	logger.InfoWithFields(msg, map[string]interface{}{
		"table":    table,
		"rows":     rows,
		"duration": time.Since(start),
	})
}
