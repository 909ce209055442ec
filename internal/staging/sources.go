// Package staging lists the BigQuery load jobs that stage each raw movie
// source.
package staging

import (
	"fmt"
	"sort"
	"strings"

	"starflow/internal/bigquery"
	"starflow/pkg/errors"
)

// DefaultBucket holds the public raw movie dumps.
const DefaultBucket = "udacity-de"

// Source names, which double as the destination dataset.
const (
	SourceIMDB   = "imdb"
	SourceML     = "ml"
	SourceTMDB   = "tmdb"
	SourceAwards = "awards"
)

// Datasets are created before any stage runs, analytics last.
var Datasets = []string{SourceIMDB, SourceML, SourceTMDB, SourceAwards, "analytics"}

var (
	f      = bigquery.F
	record = bigquery.Record
)

func uri(bucket, path string) string {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return fmt.Sprintf("gs://%s/%s", strings.TrimSuffix(strings.TrimPrefix(bucket, "gs://"), "/"), path)
}

// IMDB stages the gzipped TSV dumps. IMDB text uses ^ as the quote
// character so stray double quotes in titles load unchanged.
func IMDB(bucket string) []bigquery.LoadSpec {
	tsv := func(table string, schema ...bigquery.Field) bigquery.LoadSpec {
		return bigquery.LoadSpec{
			URI:            uri(bucket, "imdb/"+strings.ReplaceAll(table, "_", ".")+".tsv.gz"),
			Dataset:        SourceIMDB,
			Table:          table,
			Format:         bigquery.FormatCSV,
			Schema:         schema,
			FieldDelimiter: "\t",
			Quote:          "^",
			NullMarker:     `\N`,
		}
	}

	return []bigquery.LoadSpec{
		tsv("name_basics",
			f("nconst", "STRING"),
			f("primaryName", "STRING"),
			f("birthYear", "STRING"),
			f("deathYear", "STRING"),
			f("primaryProfession", "STRING"),
			f("knownForTitles", "STRING"),
		),
		tsv("title_basics",
			f("tconst", "STRING"),
			f("titleType", "STRING"),
			f("primaryTitle", "STRING"),
			f("originalTitle", "STRING"),
			f("isAdult", "BOOLEAN"),
			f("startYear", "STRING"),
			f("endYear", "STRING"),
			f("runtimeMinutes", "INT64"),
			f("genres", "STRING"),
		),
		tsv("title_ratings",
			f("nconst", "STRING"),
			f("averageRating", "NUMERIC"),
			f("numVotes", "INT64"),
		),
		tsv("title_principals",
			f("tconst", "STRING"),
			f("ordering", "INT64"),
			f("nconst", "STRING"),
			f("category", "STRING"),
			f("job", "STRING"),
			f("characters", "STRING"),
		),
		tsv("title_crew",
			f("tconst", "STRING"),
			f("directors", "STRING"),
			f("writers", "STRING"),
		),
	}
}

// MovieLens stages the ml-25m CSV files.
func MovieLens(bucket string) []bigquery.LoadSpec {
	csv := func(table string, schema ...bigquery.Field) bigquery.LoadSpec {
		return bigquery.LoadSpec{
			URI:     uri(bucket, "ml-25m/"+strings.ReplaceAll(table, "_", "-")+".csv"),
			Dataset: SourceML,
			Table:   table,
			Format:  bigquery.FormatCSV,
			Schema:  schema,
		}
	}

	return []bigquery.LoadSpec{
		csv("genome_tags", f("tagId", "INT64"), f("tag", "STRING")),
		csv("genome_scores", f("movieId", "INT64"), f("tagId", "INT64"), f("relevance", "FLOAT64")),
		csv("movies", f("movieId", "INT64"), f("title", "STRING"), f("genres", "STRING")),
		csv("links", f("movieId", "INT64"), f("imdbId", "INT64"), f("tmdbId", "INT64")),
		csv("ratings", f("userId", "INT64"), f("movieId", "INT64"), f("rating", "NUMERIC"), f("timestamp", "INT64")),
	}
}

// TMDB stages the movie details dump, one JSON document per line.
func TMDB(bucket string) []bigquery.LoadSpec {
	return []bigquery.LoadSpec{{
		URI:     uri(bucket, "tmdb/*.json"),
		Dataset: SourceTMDB,
		Table:   "movies",
		Format:  bigquery.FormatNDJSON,
		Schema: []bigquery.Field{
			f("adult", "BOOLEAN"),
			f("backdrop_path", "STRING"),
			record("belongs_to_collection", false,
				f("id", "INT64"),
				f("name", "STRING"),
				f("poster_path", "STRING"),
				f("backdrop_path", "STRING"),
			),
			f("budget", "INT64"),
			record("genres", true, f("id", "INT64"), f("name", "STRING")),
			f("homepage", "STRING"),
			f("id", "INT64"),
			f("imdb_id", "STRING"),
			f("original_language", "STRING"),
			f("original_title", "STRING"),
			f("overview", "STRING"),
			f("popularity", "NUMERIC"),
			f("poster_path", "STRING"),
			record("production_companies", true,
				f("id", "INT64"),
				f("logo_path", "STRING"),
				f("name", "STRING"),
				f("origin_country", "STRING"),
			),
			record("production_countries", true, f("iso_3166_1", "STRING"), f("name", "STRING")),
			f("release_date", "STRING"),
			f("revenue", "INT64"),
			f("runtime", "INT64"),
			record("spoken_languages", true, f("iso_639_1", "STRING"), f("name", "STRING")),
			f("status", "STRING"),
			f("tagline", "STRING"),
			f("title", "STRING"),
			f("video", "BOOLEAN"),
			f("vote_average", "NUMERIC"),
			f("vote_count", "INT64"),
		},
	}}
}

// Awards stages the award ceremony CSV exports.
func Awards(bucket string) []bigquery.LoadSpec {
	csv := func(file, table string, schema ...bigquery.Field) bigquery.LoadSpec {
		return bigquery.LoadSpec{
			URI:     uri(bucket, "awards/"+file),
			Dataset: SourceAwards,
			Table:   table,
			Format:  bigquery.FormatCSV,
			Schema:  schema,
		}
	}

	return []bigquery.LoadSpec{
		csv("oscars.csv", "oscars",
			f("year_filme", "INT64"),
			f("year_ceremony", "INT64"),
			f("ceremony", "INT64"),
			f("category", "STRING"),
			f("name", "STRING"),
			f("film", "STRING"),
			f("winner", "BOOLEAN"),
		),
		csv("bafta.csv", "bafta",
			f("year", "INT64"),
			f("category", "STRING"),
			f("nominee", "STRING"),
			f("workers", "STRING"),
			f("winner", "BOOLEAN"),
		),
		csv("goldenglobe.csv", "golden_globe",
			f("year_film", "INT64"),
			f("year_award", "INT64"),
			f("ceremony", "INT64"),
			f("category", "STRING"),
			f("nominee", "STRING"),
			f("film", "STRING"),
			f("win", "BOOLEAN"),
		),
		csv("screen_actor_guild_awards.csv", "saga",
			f("year", "STRING"),
			f("category", "STRING"),
			f("full_name", "STRING"),
			f("show", "STRING"),
			f("won", "BOOLEAN"),
		),
	}
}

var sources = map[string]func(bucket string) []bigquery.LoadSpec{
	SourceIMDB:   IMDB,
	SourceML:     MovieLens,
	SourceTMDB:   TMDB,
	SourceAwards: Awards,
}

// Names returns the known source names, sorted.
func Names() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the load specs of one source.
func Source(name, bucket string) ([]bigquery.LoadSpec, error) {
	build, ok := sources[strings.ToLower(name)]
	if !ok {
		return nil, errors.ValidationError("source", name, "unknown source").
			WithSuggestions("Use one of: " + strings.Join(Names(), ", "))
	}
	return build(bucket), nil
}

// All returns every load spec in staging order.
func All(bucket string) []bigquery.LoadSpec {
	var specs []bigquery.LoadSpec
	for _, name := range []string{SourceIMDB, SourceML, SourceTMDB, SourceAwards} {
		specs = append(specs, sources[name](bucket)...)
	}
	return specs
}
