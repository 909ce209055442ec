package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/bigquery"
	"starflow/pkg/errors"
)

func TestIMDB(t *testing.T) {
	specs := IMDB("")
	require.Len(t, specs, 5)

	for _, s := range specs {
		assert.Equal(t, "imdb", s.Dataset)
		assert.Equal(t, "\t", s.FieldDelimiter)
		assert.Equal(t, "^", s.Quote)
		assert.Equal(t, `\N`, s.NullMarker)
		assert.Equal(t, bigquery.FormatCSV, s.Format)
	}

	assert.Equal(t, "gs://udacity-de/imdb/name.basics.tsv.gz", specs[0].URI)
	assert.Equal(t, "title_ratings", specs[2].Table)
	assert.Equal(t, "nconst", specs[2].Schema[0].Name)
}

func TestMovieLensURIs(t *testing.T) {
	specs := MovieLens("gs://my-bucket/")
	require.Len(t, specs, 5)
	assert.Equal(t, "gs://my-bucket/ml-25m/genome-tags.csv", specs[0].URI)
	assert.Equal(t, "gs://my-bucket/ml-25m/genome-scores.csv", specs[1].URI)
	assert.Equal(t, "FLOAT64", specs[1].Schema[2].Type)
}

func TestTMDBNestedSchema(t *testing.T) {
	specs := TMDB("")
	require.Len(t, specs, 1)
	spec := specs[0]
	assert.Equal(t, bigquery.FormatNDJSON, spec.Format)
	assert.Equal(t, "gs://udacity-de/tmdb/*.json", spec.URI)

	schema := bigquery.ToSchema(spec.Schema)
	byName := map[string]int{}
	for i, fs := range schema {
		byName[fs.Name] = i
	}

	collection := schema[byName["belongs_to_collection"]]
	assert.False(t, collection.Repeated)
	assert.Len(t, collection.Schema, 4)

	for _, name := range []string{"genres", "production_companies", "production_countries", "spoken_languages"} {
		assert.True(t, schema[byName[name]].Repeated, name)
	}
}

func TestAwards(t *testing.T) {
	specs := Awards("")
	tables := make([]string, 0, len(specs))
	for _, s := range specs {
		tables = append(tables, s.Table)
		assert.Equal(t, "awards", s.Dataset)
	}
	assert.Equal(t, []string{"oscars", "bafta", "golden_globe", "saga"}, tables)
	assert.Equal(t, "gs://udacity-de/awards/screen_actor_guild_awards.csv", specs[3].URI)
}

func TestSource(t *testing.T) {
	specs, err := Source("IMDB", "")
	require.NoError(t, err)
	assert.Len(t, specs, 5)

	_, err = Source("netflix", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetErrorCode(err))

	assert.Equal(t, []string{"awards", "imdb", "ml", "tmdb"}, Names())
	assert.Len(t, All(""), 5+5+1+4)
}
