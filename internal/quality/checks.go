// Package quality runs count-based data-quality checks against any
// warehouse that can answer a scalar query.
package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"starflow/internal/observability"
	"starflow/pkg/errors"
)

// Expectation on the value a check query returns.
type Expectation int

const (
	// NonZero requires at least one row.
	NonZero Expectation = iota
	// Zero requires the count to be zero, e.g. duplicate keys.
	Zero
)

func (e Expectation) String() string {
	if e == Zero {
		return "= 0"
	}
	return "> 0"
}

func (e Expectation) holds(n int64) bool {
	if e == Zero {
		return n == 0
	}
	return n > 0
}

// Check is one count query and its expectation.
type Check struct {
	Name   string
	SQL    string
	Expect Expectation
}

// Querier answers scalar count queries. Both warehouse.Service and
// bigquery.Client satisfy it.
type Querier interface {
	QueryInt64(ctx context.Context, query string) (int64, error)
}

// RowCounts requires every table to hold at least one row.
func RowCounts(tables ...string) []Check {
	checks := make([]Check, 0, len(tables))
	for _, table := range tables {
		checks = append(checks, Check{
			Name:   "rows:" + table,
			SQL:    "SELECT COUNT(*) FROM " + table,
			Expect: NonZero,
		})
	}
	return checks
}

// DuplicateKeys requires key to be unique in table.
func DuplicateKeys(table, key string) Check {
	return Check{
		Name: fmt.Sprintf("unique:%s.%s", table, key),
		SQL: fmt.Sprintf("SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) AS dup",
			key, table, key),
		Expect: Zero,
	}
}

// NullCount requires column to have no NULLs in table.
func NullCount(table, column string) Check {
	return Check{
		Name:   fmt.Sprintf("not_null:%s.%s", table, column),
		SQL:    fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, column),
		Expect: Zero,
	}
}

// SparkifyTables are the star-schema tables of the music warehouse.
var SparkifyTables = []string{"songplays", "users", "songs", "artists", "times"}

// SparkifyChecks covers the music warehouse.
func SparkifyChecks() []Check {
	checks := RowCounts(SparkifyTables...)
	return append(checks,
		NullCount("users", "user_id"),
		DuplicateKeys("users", "user_id"),
	)
}

// MovieChecks covers the analytics dataset.
func MovieChecks(dataset string) []Check {
	if dataset == "" {
		dataset = "analytics"
	}
	tables := []string{"movie", "person", "movie_person", "genre", "rating", "tag", "production_company", "award"}
	qualified := make([]string, len(tables))
	for i, t := range tables {
		qualified[i] = dataset + "." + t
	}

	checks := RowCounts(qualified...)
	return append(checks,
		DuplicateKeys(dataset+".movie", "tconst"),
		DuplicateKeys(dataset+".person", "nconst"),
	)
}

// Result of a single check.
type Result struct {
	Check    Check
	Value    int64
	Passed   bool
	Err      error
	Duration time.Duration
}

// Report is the outcome of a Run.
type Report struct {
	Results []Result
}

// Failed returns the results that did not pass.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err summarises the failures, or returns nil when every check passed.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}

	details := make([]string, 0, len(failed))
	names := make([]string, 0, len(failed))
	for _, res := range failed {
		names = append(names, res.Check.Name)
		if res.Err != nil {
			details = append(details, fmt.Sprintf("%s: %v", res.Check.Name, res.Err))
			continue
		}
		details = append(details, fmt.Sprintf("%s: got %d, want %s", res.Check.Name, res.Value, res.Check.Expect))
	}

	return errors.ValidationError("quality", strings.Join(names, ","),
		fmt.Sprintf("%d of %d checks failed", len(failed), len(r.Results))).
		WithCode(errors.ErrCodeQualityCheck).
		WithSeverity(errors.SeverityError).
		WithDetails(details...)
}

// Run executes every check. A query error fails that check only.
func Run(ctx context.Context, q Querier, checks []Check) Report {
	logger := observability.GetDefaultLogger().WithField("component", "quality")
	report := Report{Results: make([]Result, 0, len(checks))}

	for _, check := range checks {
		start := time.Now()
		n, err := q.QueryInt64(ctx, check.SQL)
		res := Result{Check: check, Value: n, Err: err, Duration: time.Since(start)}
		res.Passed = err == nil && check.Expect.holds(n)
		report.Results = append(report.Results, res)

		fields := map[string]interface{}{
			"check":    check.Name,
			"value":    n,
			"duration": res.Duration,
		}
		switch {
		case err != nil:
			fields["error"] = err
			logger.ErrorWithFields("Data quality check errored", fields)
		case !res.Passed:
			logger.WarnWithFields("Data quality check failed", fields)
		default:
			logger.DebugWithFields("Data quality check passed", fields)
		}

		if ctx.Err() != nil {
			break
		}
	}
	return report
}
