package lake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"starflow/internal/quality"
	"starflow/internal/warehouse"
	"starflow/pkg/errors"
)

// ViewSQL exposes one lake table as a DuckDB view over its Parquet files.
func ViewSQL(dir, table string) string {
	glob := filepath.ToSlash(filepath.Join(dir, table)) + "/**/*.parquet"
	opts := ""
	if isPartitioned(table) {
		opts = ", hive_partitioning = true"
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s'%s)",
		table, strings.ReplaceAll(glob, "'", "''"), opts)
}

// LakeChecks are run by Inspect.
func LakeChecks() []quality.Check {
	checks := quality.RowCounts(Tables...)
	return append(checks,
		quality.DuplicateKeys("users", "user_id"),
		quality.DuplicateKeys("songs", "song_id"),
		quality.NullCount("songplays", "start_time"),
	)
}

// Inspect opens a local lake with an in-memory DuckDB and runs the lake
// checks against it.
func Inspect(ctx context.Context, dir string) (quality.Report, error) {
	svc := warehouse.NewService(warehouse.Config{Driver: warehouse.DriverDuckDB})
	if err := svc.Connect(ctx); err != nil {
		return quality.Report{}, err
	}
	defer svc.Close()

	return inspectWith(ctx, svc, dir)
}

func inspectWith(ctx context.Context, svc *warehouse.Service, dir string) (quality.Report, error) {
	for _, table := range Tables {
		if _, err := os.Stat(filepath.Join(dir, table)); err != nil {
			return quality.Report{}, errors.Wrap(err, errors.ErrCodeStorageRead, "Lake table "+table+" not found").
				WithContext("dir", dir).
				WithSuggestions("Run 'starflow lake run' first")
		}
		if err := svc.ExecStatements(ctx, ViewSQL(dir, table)); err != nil {
			return quality.Report{}, err
		}
	}
	return quality.Run(ctx, svc, LakeChecks()), nil
}
