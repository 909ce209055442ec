// Package pipelines defines the concrete DAGs starflow can run.
package pipelines

import (
	"fmt"
	"sort"

	"starflow/internal/dag"
	"starflow/internal/operators"
	"starflow/internal/quality"
	"starflow/internal/sqlcatalog"
	"starflow/internal/staging"
	"starflow/pkg/errors"
)

// DAG names
const (
	SparkifyDAG      = "sparkify_dag"
	MovieAnalytics   = "movie_analytics_dag"
	MovieRedshiftDAG = "movie_redshift_dag"
)

// Builder assembles a DAG over a runtime env.
type Builder func(env *operators.Env) *dag.DAG

// Registry returns every DAG by name.
func Registry() map[string]Builder {
	return map[string]Builder{
		SparkifyDAG:      Sparkify,
		MovieAnalytics:   Movies,
		MovieRedshiftDAG: MoviesRedshift,
	}
}

// Names lists the registered DAGs, sorted.
func Names() []string {
	reg := Registry()
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build looks up and assembles a DAG.
func Build(name string, env *operators.Env) (*dag.DAG, error) {
	build, ok := Registry()[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeDAGUnknownTask, fmt.Sprintf("Unknown DAG '%s'", name)).
			WithSuggestions("Run 'starflow dag list' to see the available DAGs")
	}
	return build(env), nil
}

// Sparkify loads the music warehouse from S3 on Redshift.
func Sparkify(env *operators.Env) *dag.DAG {
	cfg := env.Config
	d := dag.New(SparkifyDAG, "Load and transform data in Redshift", dag.DefaultArgs())

	const conn = "redshift"
	start := &operators.Dummy{TaskID: "begin_execution"}
	stageEvents := &operators.StageRedshift{
		TaskID: "stage_events", ConnID: conn, Table: "stg_events",
		CopySQL: sqlcatalog.StagingEventsCopy(cfg), Truncate: true, Env: env,
	}
	stageSongs := &operators.StageRedshift{
		TaskID: "stage_songs", ConnID: conn, Table: "stg_songs",
		CopySQL: sqlcatalog.StagingSongsCopy(cfg), Truncate: true, Env: env,
	}

	load := func(l sqlcatalog.Load, mode string) operators.TableLoad {
		return operators.TableLoad{
			ConnID:    conn,
			Table:     l.Table,
			Columns:   l.Columns,
			SelectSQL: l.Select,
			Mode:      mode,
			Env:       env,
		}
	}

	fact := &operators.LoadFact{TableLoad: load(sqlcatalog.SongplaysLoad, operators.ModeAppend)}
	fact.TaskID = "load_songplays_fact_table"

	dims := []operators.Operator{}
	for _, dim := range []struct {
		id   string
		load sqlcatalog.Load
	}{
		{"load_user_dim_table", sqlcatalog.UsersLoad},
		{"load_song_dim_table", sqlcatalog.SongsLoad},
		{"load_artist_dim_table", sqlcatalog.ArtistsLoad},
		{"load_time_dim_table", sqlcatalog.TimesLoad},
	} {
		op := &operators.LoadDimension{TableLoad: load(dim.load, operators.ModeDelete)}
		op.TaskID = dim.id
		dims = append(dims, op)
	}

	checks := &operators.DataQuality{
		TaskID: "run_data_quality_checks", ConnID: conn,
		Checks: quality.SparkifyChecks(), Env: env,
	}
	end := &operators.Dummy{TaskID: "stop_execution"}

	return d.Layers(
		[]operators.Operator{start},
		[]operators.Operator{stageEvents, stageSongs},
		[]operators.Operator{fact},
		dims,
		[]operators.Operator{checks},
		[]operators.Operator{end},
	)
}

// Movies stages every raw movie source into BigQuery and rebuilds the
// analytics dataset from it.
func Movies(env *operators.Env) *dag.DAG {
	cfg := env.Config
	d := dag.New(MovieAnalytics, "Stage movie sources and build analytics tables in BigQuery", dag.DefaultArgs())

	start := &operators.Dummy{TaskID: "start_dag"}
	deleteIMDB := &operators.DeleteDataset{
		TaskID: "delete_imdb", Dataset: staging.SourceIMDB, DeleteContents: true, Env: env,
	}
	createDatasets := &operators.CreateDatasets{
		TaskID: "create_datasets", Datasets: staging.Datasets, Env: env,
	}

	var stages []operators.Operator
	for _, spec := range staging.All(cfg.GCP.Bucket) {
		stages = append(stages, &operators.StageBigquery{
			TaskID: fmt.Sprintf("stage_%s_%s", spec.Dataset, spec.Table),
			Spec:   spec,
			Env:    env,
		})
	}

	analytics := map[string]operators.Operator{}
	for _, table := range sqlcatalog.MovieAnalytics(cfg.GCP.Project) {
		analytics[table.Name] = &operators.BuildAnalyticsTable{
			TaskID: "analytics_" + table.Name,
			Table:  table,
			Env:    env,
		}
	}

	checks := &operators.DataQuality{
		TaskID: "run_data_quality_checks", Target: operators.TargetBigQuery,
		Checks: quality.MovieChecks(sqlcatalog.AnalyticsSchemaName), Env: env,
	}
	end := &operators.Dummy{TaskID: "finished_dag"}

	return d.Layers(
		[]operators.Operator{start},
		[]operators.Operator{deleteIMDB},
		[]operators.Operator{createDatasets},
		stages,
		[]operators.Operator{analytics["movie"]},
		[]operators.Operator{analytics["person"]},
		[]operators.Operator{analytics["movie_person"]},
		[]operators.Operator{analytics["genre"], analytics["rating"], analytics["tag"], analytics["production_company"]},
		[]operators.Operator{analytics["award"]},
		[]operators.Operator{checks},
		[]operators.Operator{end},
	)
}

// MoviesRedshift stages the movie sources into Redshift schemas and resets
// the analytics schema there.
func MoviesRedshift(env *operators.Env) *dag.DAG {
	d := dag.New(MovieRedshiftDAG, "Stage movie sources in Redshift", dag.DefaultArgs())

	const conn = "redshift"
	start := &operators.Dummy{TaskID: "start_dag"}

	var stages []operators.Operator
	for _, schema := range sqlcatalog.MovieStaging(env.Config) {
		stages = append(stages, &operators.ExecSQL{
			TaskID:     "stage_" + schema.Schema,
			ConnID:     conn,
			Statements: schema.Statements(),
			Env:        env,
		})
	}

	analytics := &operators.ResetSchema{
		TaskID: "create_analytics_schema",
		ConnID: conn,
		Schema: sqlcatalog.AnalyticsSchemaName,
		Tables: sqlcatalog.AnalyticsTables(),
		Env:    env,
	}
	end := &operators.Dummy{TaskID: "finished_dag"}

	return d.Layers(
		[]operators.Operator{start},
		stages,
		[]operators.Operator{analytics},
		[]operators.Operator{end},
	)
}
