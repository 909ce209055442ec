package pipelines

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/bigquery"
	"starflow/internal/dag"
	"starflow/internal/operators"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

type fakeBigQuery struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeBigQuery) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBigQuery) CreateDataset(ctx context.Context, name string) (bool, error) {
	f.record("create:" + name)
	return true, nil
}

func (f *fakeBigQuery) LoadFromURI(ctx context.Context, spec bigquery.LoadSpec) (bigquery.LoadResult, error) {
	f.record("load:" + spec.TableID())
	return bigquery.LoadResult{Table: spec.TableID(), Rows: 10}, nil
}

func (f *fakeBigQuery) QueryToTable(ctx context.Context, sql, dataset, table, disposition string) (bigquery.LoadResult, error) {
	f.record("query:" + dataset + "." + table)
	return bigquery.LoadResult{Table: dataset + "." + table, Rows: 10}, nil
}

func (f *fakeBigQuery) QueryInt64(ctx context.Context, sql string) (int64, error) {
	if strings.Contains(sql, "HAVING") {
		return 0, nil
	}
	return 10, nil
}

func (f *fakeBigQuery) DeleteTable(ctx context.Context, dataset, table string, notFoundOK bool) error {
	f.record("delete_table:" + dataset + "." + table)
	return nil
}

func (f *fakeBigQuery) DeleteDataset(ctx context.Context, name string, deleteContents bool) error {
	f.record("delete_dataset:" + name)
	return nil
}

func (f *fakeBigQuery) Close() error { return nil }

func testEnv(bq *fakeBigQuery) *operators.Env {
	cfg := &models.Config{
		IAMRole: models.IAMRole{ARN: "arn:aws:iam::1:role/r"},
		S3: models.S3{
			LogData:     "s3://udacity-dend/log_data",
			LogJSONPath: "s3://udacity-dend/log_json_path.json",
			SongData:    "s3://udacity-dend/song_data",
			IMDBBucket:  "s3://raw/imdb/",
			MLBucket:    "s3://raw/ml/",
			TMDBBucket:  "s3://raw/tmdb/",
		},
		GCP: models.GCP{Project: "movies-123", ServiceAccountPath: "/sa.json"},
	}
	env := operators.NewEnv(cfg)
	env.BigQuery = func(ctx context.Context, keyPath string) (operators.BigQuery, error) {
		return bq, nil
	}
	return env
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{MovieAnalytics, MovieRedshiftDAG, SparkifyDAG}, Names())

	env := testEnv(&fakeBigQuery{})
	for _, name := range Names() {
		d, err := Build(name, env)
		require.NoError(t, err, name)
		assert.NoError(t, d.Validate(), name)
		assert.Equal(t, name, d.ID)
	}

	_, err := Build("nope", env)
	assert.Equal(t, errors.ErrCodeDAGUnknownTask, errors.GetErrorCode(err))
}

func TestSparkifyOrder(t *testing.T) {
	d := Sparkify(testEnv(&fakeBigQuery{}))
	order, err := d.Order()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"begin_execution",
		"stage_events",
		"stage_songs",
		"load_songplays_fact_table",
		"load_user_dim_table",
		"load_song_dim_table",
		"load_artist_dim_table",
		"load_time_dim_table",
		"run_data_quality_checks",
		"stop_execution",
	}, order)
	assert.ElementsMatch(t, []string{"stage_events", "stage_songs"}, d.Upstream("load_songplays_fact_table"))
	assert.Len(t, d.Upstream("run_data_quality_checks"), 4)
	assert.Equal(t, 1, d.Defaults.Retries)
}

func TestMoviesOrder(t *testing.T) {
	d := Movies(testEnv(&fakeBigQuery{}))
	order, err := d.Order()
	require.NoError(t, err)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}

	assert.Equal(t, 0, pos["start_dag"])
	assert.Less(t, pos["delete_imdb"], pos["create_datasets"])
	assert.Less(t, pos["create_datasets"], pos["stage_imdb_title_basics"])
	assert.Less(t, pos["stage_awards_saga"], pos["analytics_movie"])
	assert.Less(t, pos["analytics_movie"], pos["analytics_person"])
	assert.Less(t, pos["analytics_person"], pos["analytics_movie_person"])
	for _, mid := range []string{"analytics_genre", "analytics_rating", "analytics_tag", "analytics_production_company"} {
		assert.Less(t, pos["analytics_movie_person"], pos[mid], mid)
		assert.Less(t, pos[mid], pos["analytics_award"], mid)
	}
	assert.Equal(t, len(order)-1, pos["finished_dag"])
	assert.Len(t, order, 3+15+8+2)
}

func TestMoviesRun(t *testing.T) {
	bq := &fakeBigQuery{}
	d := Movies(testEnv(bq))

	report, err := d.Run(context.Background(), dag.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, "delete_dataset:imdb", bq.calls[0])
	assert.Equal(t, "create:imdb", bq.calls[1])
	assert.Contains(t, bq.calls, "load:tmdb.movies")
	assert.Contains(t, bq.calls, "delete_table:analytics.award")
	assert.Equal(t, "query:analytics.award", bq.calls[len(bq.calls)-1])
}

func TestMoviesRedshiftDryRun(t *testing.T) {
	d := MoviesRedshift(testEnv(&fakeBigQuery{}))
	report, err := d.DryRun()
	require.NoError(t, err)

	var ids []string
	for _, task := range report.Tasks {
		ids = append(ids, task.TaskID)
		assert.Equal(t, dag.StatePlanned, task.State)
	}
	assert.Equal(t, []string{"start_dag", "stage_imdb", "stage_movielens", "stage_tmdb", "create_analytics_schema", "finished_dag"}, ids)
}
