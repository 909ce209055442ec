package lake

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/quality"
	"starflow/internal/warehouse"
	"starflow/pkg/errors"
)

func TestViewSQL(t *testing.T) {
	assert.Equal(t,
		"CREATE OR REPLACE VIEW songs AS SELECT * FROM read_parquet('/lake/songs/**/*.parquet', hive_partitioning = true)",
		ViewSQL("/lake", "songs"))
	assert.Equal(t,
		"CREATE OR REPLACE VIEW users AS SELECT * FROM read_parquet('/lake/users/**/*.parquet')",
		ViewSQL("/lake", "users"))
	assert.Contains(t, ViewSQL("/it's", "users"), "'/it''s/users/**/*.parquet'")
}

func TestLakeChecks(t *testing.T) {
	checks := LakeChecks()
	require.Len(t, checks, len(Tables)+3)
	assert.Equal(t, "rows:songs", checks[0].Name)
}

func TestInspectMissingTable(t *testing.T) {
	_, err := Inspect(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageRead, errors.GetErrorCode(err))
}

func TestInspectWithMock(t *testing.T) {
	out := filepath.Join(t.TempDir(), "lake")
	_, err := (&Job{Input: writeFixtures(t), Output: out}).Run(context.Background())
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := warehouse.NewServiceWithDB(db, warehouse.Config{Driver: warehouse.DriverDuckDB})

	for _, table := range Tables {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE OR REPLACE VIEW " + table)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}
	for _, check := range LakeChecks() {
		n := int64(1)
		if check.Expect == quality.Zero {
			n = 0
		}
		mock.ExpectQuery(regexp.QuoteMeta(check.SQL)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(n))
	}

	report, err := inspectWith(context.Background(), svc, out)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInspectDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("opens an embedded DuckDB")
	}
	out := filepath.Join(t.TempDir(), "lake")
	_, err := (&Job{Input: writeFixtures(t), Output: out}).Run(context.Background())
	require.NoError(t, err)

	report, err := Inspect(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, report.Results, len(LakeChecks()))
	for _, res := range report.Results {
		assert.True(t, res.Passed, "%s: value %d err %v", res.Check.Name, res.Value, res.Err)
	}
}
