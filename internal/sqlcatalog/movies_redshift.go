package sqlcatalog

import (
	"fmt"
	"strings"

	"starflow/pkg/models"
)

// StagingTable is one Redshift staging table and the COPY that fills it.
type StagingTable struct {
	Name   string
	Create string
	Copy   string
}

// StagingSchema groups the staging tables of one movie source.
type StagingSchema struct {
	Schema string
	Tables []StagingTable
}

// Statements returns the schema setup, drops, creates and copies in run order.
func (s StagingSchema) Statements() []string {
	stmts := []string{"CREATE SCHEMA IF NOT EXISTS " + s.Schema}
	for _, t := range s.Tables {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", s.Schema, t.Name))
	}
	for _, t := range s.Tables {
		stmts = append(stmts, t.Create)
	}
	for _, t := range s.Tables {
		stmts = append(stmts, t.Copy)
	}
	return stmts
}

// MovieStaging returns the imdb, movielens and tmdb staging schemas.
func MovieStaging(cfg *models.Config) []StagingSchema {
	return []StagingSchema{IMDBStaging(cfg), MovieLensStaging(cfg), TMDBStaging(cfg)}
}

// IMDBStaging stages the gzipped IMDB TSV dumps.
func IMDBStaging(cfg *models.Config) StagingSchema {
	const schema = "imdb"
	creates := map[string]string{
		"name_basics": `
CREATE TABLE imdb.name_basics (
    "nconst" varchar(2048) NOT NULL,
    "primaryName" varchar(2048) NOT NULL,
    "birthYear" varchar(4) NULL,
    "deathYear" varchar(4) NULL,
    "primaryProfession" varchar(2048) NULL,
    "knownForTitles" varchar(2048) NULL
)`,
		"title_basics": `
CREATE TABLE imdb.title_basics (
    "tconst" varchar(16) NOT NULL,
    "titleType" varchar(32) NOT NULL,
    "primaryTitle" varchar(1024) NOT NULL,
    "originalTitle" varchar(1024) NOT NULL,
    "isAdult" int NOT NULL,
    "startYear" varchar(4) NULL,
    "endYear" varchar(4) NULL,
    "runtimeMinutes" int NULL,
    "genres" varchar(1024) NULL
)`,
		"title_crew": `
CREATE TABLE imdb.title_crew (
    "tconst" varchar(16) NOT NULL,
    "directors" varchar(16000) NULL,
    "writers" varchar(16000) NULL
)`,
		"title_principals": `
CREATE TABLE imdb.title_principals (
    "tconst" varchar(16) NOT NULL,
    "ordering" int NOT NULL,
    "nconst" varchar(16) NOT NULL,
    "category" varchar(2048) NULL,
    "job" varchar(2048) NULL,
    "characters" varchar(2048) NULL
)`,
		"title_ratings": `
CREATE TABLE imdb.title_ratings (
    "nconst" varchar(16) NOT NULL,
    "averageRating" numeric(3,1) NOT NULL,
    "numVotes" int NOT NULL
)`,
	}

	names := []string{"name_basics", "title_basics", "title_crew", "title_principals", "title_ratings"}
	tables := make([]StagingTable, 0, len(names))
	for _, name := range names {
		path := strings.Trim(cfg.S3.IMDBBucket, `'"`) + strings.ReplaceAll(name, "_", ".") + ".tsv.gz"
		tables = append(tables, StagingTable{
			Name:   name,
			Create: creates[name],
			Copy: fmt.Sprintf(`COPY %s.%s FROM %s
    IAM_ROLE %s
    REGION %s
    IGNOREHEADER 1
    DELIMITER '\t' GZIP`, schema, name, Literal(path), Literal(cfg.IAMRole.ARN), Literal(region(cfg))),
		})
	}
	return StagingSchema{Schema: schema, Tables: tables}
}

// MovieLensStaging stages the MovieLens 25M CSV files.
func MovieLensStaging(cfg *models.Config) StagingSchema {
	const schema = "movielens"
	creates := map[string]string{
		"genome_scores": `
CREATE TABLE movielens.genome_scores (
    "movieId" int NOT NULL,
    "tagId" int NOT NULL,
    "relevance" numeric(24,1) NOT NULL
)`,
		"genome_tags": `
CREATE TABLE movielens.genome_tags (
    "tagId" int NOT NULL,
    "tag" varchar(2048) NOT NULL
)`,
		"links": `
CREATE TABLE movielens.links (
    "movieId" int NOT NULL,
    "imdbId" int NOT NULL,
    "tmdbId" int NULL
)`,
		"movies": `
CREATE TABLE movielens.movies (
    "movieId" int NOT NULL,
    "title" varchar(2048) NOT NULL,
    "genres" varchar(2048) NOT NULL
)`,
		"ratings": `
CREATE TABLE movielens.ratings (
    "userId" int NOT NULL,
    "movieId" int NOT NULL,
    "rating" numeric(3,1) NOT NULL,
    "timestamp" int NOT NULL
)`,
	}

	names := []string{"genome_scores", "genome_tags", "links", "movies", "ratings"}
	tables := make([]StagingTable, 0, len(names))
	for _, name := range names {
		path := strings.Trim(cfg.S3.MLBucket, `'"`) + strings.ReplaceAll(name, "_", "-") + ".csv"
		tables = append(tables, StagingTable{
			Name:   name,
			Create: creates[name],
			Copy: fmt.Sprintf(`COPY %s.%s FROM %s
    IAM_ROLE %s
    REGION %s
    IGNOREHEADER 1
    CSV`, schema, name, Literal(path), Literal(cfg.IAMRole.ARN), Literal(region(cfg))),
		})
	}
	return StagingSchema{Schema: schema, Tables: tables}
}

// TMDBStaging stages the TMDB movie dump, one JSON document per line.
func TMDBStaging(cfg *models.Config) StagingSchema {
	return StagingSchema{
		Schema: "tmdb",
		Tables: []StagingTable{{
			Name: "movies",
			Create: `
CREATE TABLE tmdb.movies (
    "adult" boolean NULL,
    "backdrop_path" varchar(2000) NULL,
    "belongs_to_collection" varchar(2000) NULL,
    "budget" bigint NULL,
    "genres" varchar(4000) NULL,
    "homepage" varchar(2000) NULL,
    "id" int NULL,
    "imdb_id" varchar(32) NULL,
    "original_language" varchar(2) NULL,
    "original_title" varchar(4000) NULL,
    "overview" varchar(8000) NULL,
    "popularity" numeric(10,2) NULL,
    "poster_path" varchar(4000) NULL,
    "production_companies" varchar(4000) NULL,
    "production_countries" varchar(4000) NULL,
    "release_date" varchar(10) NULL,
    "revenue" bigint NULL,
    "runtime" bigint NULL,
    "spoken_languages" varchar(4000) NULL,
    "status" varchar(100) NULL,
    "tagline" varchar(4000) NULL,
    "title" varchar(4000) NULL,
    "video" boolean NULL,
    "vote_average" numeric(3,1) NULL,
    "vote_count" int NULL
)`,
			Copy: fmt.Sprintf(`COPY tmdb.movies FROM %s
    IAM_ROLE %s
    REGION %s
    COMPUPDATE OFF STATUPDATE OFF
    JSON 'auto'`, Literal(cfg.S3.TMDBBucket), Literal(cfg.IAMRole.ARN), Literal(region(cfg))),
		}},
	}
}

// AnalyticsSchemaName is the Redshift schema holding the movie star schema.
const AnalyticsSchemaName = "analytics"

// AnalyticsTables creates the tables of the analytics schema. The schema
// itself must exist.
func AnalyticsTables() []string {
	return []string{
		`
CREATE TABLE analytics.genre (
    tconst varchar(1024) NOT NULL,
    genre varchar(100) NOT NULL,
    UNIQUE(tconst, genre)
)`,
		`
CREATE TABLE analytics.movie (
    "tconst" varchar(1024) UNIQUE NOT NULL PRIMARY KEY,
    "original_title" varchar(1024) NOT NULL,
    "overview" varchar(1024) NOT NULL,
    "release_date" varchar(1024) NOT NULL,
    "start_year" varchar(1024) NOT NULL,
    "end_year" varchar(1024) NOT NULL,
    "imdb_rating" varchar(1024) NOT NULL,
    "tmdb_rating" varchar(1024) NOT NULL,
    "movielens_rating" varchar(1024) NOT NULL,
    "original_language" varchar(1024) NOT NULL,
    "budget" bigint NULL,
    "revenue" bigint NULL,
    "status" varchar(1024) NOT NULL
)`,
	}
}
