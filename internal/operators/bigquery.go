package operators

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"starflow/internal/bigquery"
	"starflow/internal/sqlcatalog"
	"starflow/pkg/errors"
)

// StageBigquery loads one Cloud Storage source into its staging table,
// replacing what was there.
type StageBigquery struct {
	TaskID string
	Spec   bigquery.LoadSpec
	Env    *Env
}

func (o *StageBigquery) ID() string { return o.TaskID }

func (o *StageBigquery) Execute(ctx context.Context) error {
	logger := taskLogger(o.TaskID)
	start := time.Now()

	client, err := o.Env.BigQueryClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.InfoWithFields("Staging", map[string]interface{}{"uri": o.Spec.URI, "table": o.Spec.TableID()})
	res, err := client.LoadFromURI(ctx, o.Spec)
	if err != nil {
		o.printErrors(err)
		return err
	}

	logger.Infof("Loaded %d rows to table %s", res.Rows, res.Table)
	logDone(logger, "Stage finished", res.Table, res.Rows, start)
	return nil
}

// printErrors writes the vendor's per-row messages, one line each.
func (o *StageBigquery) printErrors(err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return
	}
	for _, msg := range appErr.Details {
		fmt.Fprintf(o.Env.out(), "ERROR: %s\n", msg)
	}
}

// BigqueryQuery writes the result of one query to a destination table.
type BigqueryQuery struct {
	TaskID      string
	SQL         string
	Dataset     string
	Table       string
	Disposition string
	Env         *Env
}

func (o *BigqueryQuery) ID() string { return o.TaskID }

func (o *BigqueryQuery) Execute(ctx context.Context) error {
	client, err := o.Env.BigQueryClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	res, err := client.QueryToTable(ctx, o.SQL, o.Dataset, o.Table, o.Disposition)
	if err != nil {
		return err
	}
	logDone(taskLogger(o.TaskID), "Query finished", res.Table, res.Rows, start)
	return nil
}

// BuildAnalyticsTable rebuilds one analytics table. Tables made of several
// parts are deleted first and then appended to part by part.
type BuildAnalyticsTable struct {
	TaskID string
	Table  sqlcatalog.AnalyticsTable
	Env    *Env
}

func (o *BuildAnalyticsTable) ID() string { return o.TaskID }

func (o *BuildAnalyticsTable) Execute(ctx context.Context) error {
	client, err := o.Env.BigQueryClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	logger := taskLogger(o.TaskID)
	start := time.Now()

	if o.Table.Reset {
		if err := client.DeleteTable(ctx, o.Table.Dataset, o.Table.Name, true); err != nil {
			return err
		}
	}

	var rows uint64
	for _, part := range o.Table.Parts {
		res, err := client.QueryToTable(ctx, part.SQL, o.Table.Dataset, o.Table.Name, part.Disposition)
		if err != nil {
			return errors.Wrap(err, errors.GetErrorCode(err),
				fmt.Sprintf("Failed to build %s from %s", o.Table.TableID(), part.Name))
		}
		logger.Debugf("Part %s written to %s", part.Name, res.Table)
		rows = res.Rows
	}

	logDone(logger, "Analytics table built", o.Table.TableID(), rows, start)
	return nil
}

// CreateDatasets creates each dataset, leaving existing ones untouched.
type CreateDatasets struct {
	TaskID   string
	Datasets []string
	Env      *Env
}

func (o *CreateDatasets) ID() string { return o.TaskID }

func (o *CreateDatasets) Execute(ctx context.Context) error {
	client, err := o.Env.BigQueryClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, name := range o.Datasets {
		if _, err := client.CreateDataset(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDataset removes a dataset, with its tables when DeleteContents is set.
type DeleteDataset struct {
	TaskID         string
	Dataset        string
	DeleteContents bool
	Env            *Env
}

func (o *DeleteDataset) ID() string { return o.TaskID }

func (o *DeleteDataset) Execute(ctx context.Context) error {
	client, err := o.Env.BigQueryClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.DeleteDataset(ctx, o.Dataset, o.DeleteContents)
}
