package cmd

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/operators"
	"starflow/internal/quality"
	"starflow/internal/testutil"
	"starflow/pkg/errors"
)

func TestQualityRunWarehouse(t *testing.T) {
	path := writeProfile(t, testutil.SampleProfile)
	svc, mock := testutil.NewMockDB(t)
	withEnv(t, func(env *operators.Env) { env.Connections.Set("", svc) })

	for _, check := range quality.SparkifyChecks() {
		n := int64(0)
		if check.Expect == quality.NonZero {
			n = 12
		}
		testutil.ExpectCount(mock, regexp.QuoteMeta(check.SQL), n)
	}

	out, err := execute(t, "--config", path, "quality", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "rows:songplays")
	assert.Contains(t, out, "passed")
	assert.Contains(t, out, "sparkify checks passed")
}

func TestQualityRunWarehouseFailure(t *testing.T) {
	path := writeProfile(t, testutil.SampleProfile)
	svc, mock := testutil.NewMockDB(t)
	withEnv(t, func(env *operators.Env) { env.Connections.Set("", svc) })

	for _, check := range quality.SparkifyChecks() {
		testutil.ExpectCount(mock, regexp.QuoteMeta(check.SQL), 0)
	}

	out, err := execute(t, "--config", path, "quality", "run", "--suite", "sparkify")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQualityCheck, errors.GetErrorCode(err))
	assert.Contains(t, out, "failed")
}

func TestQualityRunBigQuery(t *testing.T) {
	path := writeProfile(t, testutil.SampleProfile)
	withBigQuery(t, &fakeBigQuery{counts: passingCounts()})

	out, err := execute(t, "--config", path, "quality", "run", "--target", "bigquery")
	require.NoError(t, err)
	assert.Contains(t, out, "movies checks passed")
}

func TestQualityRunValidation(t *testing.T) {
	path := writeProfile(t, testutil.SampleProfile)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown target", []string{"--target", "athena"}, "must be 'warehouse' or 'bigquery'"},
		{"unknown suite", []string{"--suite", "weather"}, "must be 'sparkify' or 'movies'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", path, "quality", "run"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
