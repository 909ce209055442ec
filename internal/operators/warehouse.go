package operators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"starflow/internal/quality"
	"starflow/internal/sqlcatalog"
	"starflow/pkg/errors"
)

// Load modes
const (
	ModeAppend = "append"
	ModeDelete = "delete"
)

// TableLoad inserts the result of a SELECT into a warehouse table.
type TableLoad struct {
	TaskID    string
	ConnID    string
	Table     string
	Columns   []string
	SelectSQL string
	// Mode is ModeAppend (default) or ModeDelete, which empties the
	// table before inserting.
	Mode string
	Env  *Env
}

func (o *TableLoad) ID() string { return o.TaskID }

// Statements returns the SQL the load runs, in order.
func (o *TableLoad) Statements() ([]string, error) {
	insert := sqlcatalog.Insert(o.Table, o.Columns, o.SelectSQL)
	switch strings.ToLower(o.Mode) {
	case "", ModeAppend:
		return []string{insert}, nil
	case ModeDelete:
		return []string{sqlcatalog.DeleteAll(o.Table), insert}, nil
	default:
		return nil, errors.ValidationError("mode", o.Mode, "must be 'append' or 'delete'")
	}
}

func (o *TableLoad) run(ctx context.Context, kind string) error {
	logger := taskLogger(o.TaskID)
	start := time.Now()

	stmts, err := o.Statements()
	if err != nil {
		return err
	}

	svc, err := o.Env.Connections.Get(ctx, o.ConnID)
	if err != nil {
		return err
	}

	logger.Infof("Loading %s table %s", kind, o.Table)
	if err := svc.ExecStatements(ctx, stmts...); err != nil {
		return err
	}

	rows, err := svc.QueryInt64(ctx, sqlcatalog.CountRows(o.Table))
	if err != nil {
		return err
	}
	logDone(logger, fmt.Sprintf("Loaded %s table", kind), o.Table, rows, start)
	return nil
}

// LoadFact fills a fact table.
type LoadFact struct {
	TableLoad
}

func (o *LoadFact) Execute(ctx context.Context) error {
	return o.run(ctx, "fact")
}

// LoadDimension fills a dimension table.
type LoadDimension struct {
	TableLoad
}

func (o *LoadDimension) Execute(ctx context.Context) error {
	return o.run(ctx, "dimension")
}

// StageRedshift runs a COPY into a staging table, emptying it first when
// Truncate is set.
type StageRedshift struct {
	TaskID   string
	ConnID   string
	Table    string
	CopySQL  string
	Truncate bool
	Env      *Env
}

func (o *StageRedshift) ID() string { return o.TaskID }

func (o *StageRedshift) Execute(ctx context.Context) error {
	logger := taskLogger(o.TaskID)
	start := time.Now()

	svc, err := o.Env.Connections.Get(ctx, o.ConnID)
	if err != nil {
		return err
	}

	var stmts []string
	if o.Truncate {
		stmts = append(stmts, sqlcatalog.DeleteAll(o.Table))
	}
	stmts = append(stmts, o.CopySQL)

	logger.Infof("Copying data from S3 to %s", o.Table)
	if err := svc.ExecStatements(ctx, stmts...); err != nil {
		return err
	}
	logDone(logger, "Stage finished", o.Table, "-", start)
	return nil
}

// ExecSQL runs a fixed statement list, committing each one. When File is
// set the script is read from disk and run in a single transaction instead.
type ExecSQL struct {
	TaskID     string
	ConnID     string
	Statements []string
	File       string
	Env        *Env
}

func (o *ExecSQL) ID() string { return o.TaskID }

func (o *ExecSQL) Execute(ctx context.Context) error {
	svc, err := o.Env.Connections.Get(ctx, o.ConnID)
	if err != nil {
		return err
	}
	start := time.Now()
	if o.File != "" {
		if err := svc.ExecuteFile(ctx, o.File); err != nil {
			return err
		}
		logDone(taskLogger(o.TaskID), "Script executed", o.File, "-", start)
		return nil
	}
	if err := svc.ExecStatements(ctx, o.Statements...); err != nil {
		return err
	}
	logDone(taskLogger(o.TaskID), "Statements executed", "-", len(o.Statements), start)
	return nil
}

// ResetSchema drops Schema with everything in it, recreates it, makes it
// the search path and runs the table DDL.
type ResetSchema struct {
	TaskID string
	ConnID string
	Schema string
	Tables []string
	Env    *Env
}

func (o *ResetSchema) ID() string { return o.TaskID }

func (o *ResetSchema) Execute(ctx context.Context) error {
	logger := taskLogger(o.TaskID)
	start := time.Now()

	svc, err := o.Env.Connections.Get(ctx, o.ConnID)
	if err != nil {
		return err
	}

	logger.Infof("Recreating schema %s", o.Schema)
	if err := svc.DropSchema(ctx, o.Schema, true); err != nil {
		return err
	}
	if err := svc.CreateSchema(ctx, o.Schema, false); err != nil {
		return err
	}
	if err := svc.SetSearchPath(ctx, o.Schema); err != nil {
		return err
	}
	if err := svc.ExecStatements(ctx, o.Tables...); err != nil {
		return err
	}
	logDone(logger, "Schema created", o.Schema, len(o.Tables), start)
	return nil
}

// Quality targets
const (
	TargetWarehouse = "warehouse"
	TargetBigQuery  = "bigquery"
)

// DataQuality runs count checks and fails when any of them fails.
type DataQuality struct {
	TaskID string
	ConnID string
	// Target is TargetWarehouse (default) or TargetBigQuery.
	Target string
	Checks []quality.Check
	Env    *Env
}

func (o *DataQuality) ID() string { return o.TaskID }

func (o *DataQuality) Execute(ctx context.Context) error {
	var q quality.Querier
	switch o.Target {
	case "", TargetWarehouse:
		svc, err := o.Env.Connections.Get(ctx, o.ConnID)
		if err != nil {
			return err
		}
		q = svc
	case TargetBigQuery:
		client, err := o.Env.BigQueryClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		q = client
	default:
		return errors.ValidationError("target", o.Target, "must be 'warehouse' or 'bigquery'")
	}

	report := quality.Run(ctx, q, o.Checks)
	if err := report.Err(); err != nil {
		return err
	}
	taskLogger(o.TaskID).Infof("Data quality checks passed (%d)", len(report.Results))
	return nil
}
