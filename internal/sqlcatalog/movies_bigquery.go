package sqlcatalog

import "strings"

// Write dispositions, spelled the way BigQuery expects them.
const (
	WriteTruncate = "WRITE_TRUNCATE"
	WriteAppend   = "WRITE_APPEND"
)

// QueryPart is one query job writing into an analytics table.
type QueryPart struct {
	Name        string
	SQL         string
	Disposition string
}

// AnalyticsTable is a BigQuery analytics table and the queries that build it.
type AnalyticsTable struct {
	Name    string
	Dataset string
	Parts   []QueryPart
	// Reset deletes the table before the first part runs.
	Reset bool
}

// TableID is the dataset-qualified destination.
func (t AnalyticsTable) TableID() string {
	return t.Dataset + "." + t.Name
}

const projectPlaceholder = "{project}"

const movieSQL = `
SELECT
  imdb.tconst,
  imdb.titleType AS movie_type,
  imdb.primaryTitle AS primary_title,
  imdb.originalTitle AS original_title,
  imdb.startYear AS start_year,
  imdb.endYear AS end_year,
  imdb.runtimeMinutes AS runtime_minutes,
  tmdb.budget,
  tmdb.homepage,
  tmdb.original_language,
  tmdb.overview,
  tmdb.popularity,
  tmdb.poster_path,
  tmdb.production_companies,
  tmdb.production_countries,
  tmdb.release_date,
  tmdb.revenue,
  tmdb.runtime,
  tmdb.spoken_languages,
  tmdb.status,
  tmdb.tagline,
  tmdb.vote_average,
  tmdb.vote_count
FROM ` + "`{project}.imdb.title_basics`" + ` imdb
LEFT JOIN ` + "`{project}.tmdb.movies`" + ` tmdb
  ON tmdb.imdb_id = imdb.tconst
WHERE isAdult = FALSE
  AND titleType IN ('short', 'movie', 'tvMovie')`

const personSQL = `
SELECT
  nconst,
  primaryName AS primary_name,
  CAST(birthYear AS INT64) AS birth_year,
  CAST(deathYear AS INT64) AS death_year,
  primaryProfession AS primary_profession,
  knownForTitles AS known_for_titles
FROM ` + "`{project}.imdb.name_basics`"

const moviePersonSQL = `
SELECT
  tp.tconst,
  tp.nconst,
  m.primary_title AS movie_primary_title,
  p.primary_name AS person_primary_name,
  tp.ordering,
  tp.category,
  tp.job,
  tp.characters
FROM ` + "`{project}.imdb.title_principals`" + ` tp
JOIN ` + "`{project}.analytics.movie`" + ` m ON m.tconst = tp.tconst
JOIN ` + "`{project}.analytics.person`" + ` p ON p.nconst = tp.nconst`

const genreSQL = `
WITH imdb_genres AS (
  SELECT tconst, genre
  FROM ` + "`{project}.imdb.title_basics`" + `,
  UNNEST(SPLIT(LOWER(genres), ',')) AS genre
),
ml_genres AS (
  SELECT l.imdbId AS tconst, genre
  FROM ` + "`{project}.ml.movies`" + ` m,
  UNNEST(SPLIT(LOWER(m.genres), '|')) AS genre
  JOIN ` + "`{project}.ml.links`" + ` l ON l.movieId = m.movieId
  WHERE genre != '(no genres listed)'
),
ml_genres_with_tconst AS (
  SELECT m.tconst, ml.genre
  FROM ml_genres ml
  JOIN ` + "`{project}.analytics.movie`" + ` m
    ON CAST(REPLACE(m.tconst, 'tt', '') AS INT64) = ml.tconst
),
all_genres AS (
  SELECT * FROM ml_genres_with_tconst
  UNION ALL
  SELECT * FROM imdb_genres
)
SELECT DISTINCT tconst, genre
FROM all_genres`

// The staged title_ratings table names its title column nconst.
const ratingSQL = `
WITH ml_rating AS (
  SELECT
    m.tconst,
    TRUNC(AVG(rating), 1) AS rating,
    COUNT(1) AS num_votes
  FROM ` + "`{project}.ml.ratings`" + ` r
  JOIN ` + "`{project}.ml.links`" + ` l ON l.movieId = r.movieId
  JOIN ` + "`{project}.analytics.movie`" + ` m ON CAST(REPLACE(m.tconst, 'tt', '') AS INT64) = l.imdbId
  GROUP BY m.tconst
)
SELECT
  m.tconst,
  imdb.averageRating AS imdb_rating,
  imdb.numVotes AS imdb_num_votes,
  tmdb.vote_average AS tmdb_rating,
  tmdb.vote_count AS tmdb_num_votes,
  ml.rating AS ml_rating,
  ml.num_votes AS ml_num_votes
FROM ` + "`{project}.analytics.movie`" + ` m
LEFT JOIN ` + "`{project}.imdb.title_ratings`" + ` imdb ON imdb.nconst = m.tconst
LEFT JOIN ` + "`{project}.tmdb.movies`" + ` tmdb ON tmdb.imdb_id = m.tconst
LEFT JOIN ml_rating ml ON ml.tconst = m.tconst`

const tagSQL = `
SELECT
  m.tconst,
  gt.tag,
  gs.relevance
FROM ` + "`{project}.ml.genome_scores`" + ` gs
JOIN ` + "`{project}.ml.genome_tags`" + ` gt ON gt.tagId = gs.tagId
JOIN ` + "`{project}.ml.links`" + ` l ON l.movieId = gs.movieId
JOIN ` + "`{project}.analytics.movie`" + ` m ON CAST(REPLACE(m.tconst, 'tt', '') AS INT64) = l.imdbId`

const productionCompanySQL = `
SELECT
  tmdb.imdb_id AS tconst,
  pc.name AS production_company_name,
  pc.origin_country AS production_company_country
FROM ` + "`{project}.tmdb.movies`" + ` tmdb,
UNNEST(production_companies) AS pc
JOIN ` + "`{project}.analytics.movie`" + ` m ON tmdb.imdb_id = m.tconst
WHERE imdb_id IS NOT NULL AND imdb_id != ''`

// Every award part yields: award_name, award_year (INT64), award_category,
// award_winner, film, person_name, tconst, nconst.
const awardOscarsSQL = `
WITH oscars_person AS (
  SELECT
    o.year_ceremony AS award_year,
    o.category AS award_category,
    o.winner AS award_winner,
    o.film AS film,
    o.name AS person_name,
    m.tconst AS tconst,
    p.nconst AS nconst
  FROM ` + "`{project}.awards.oscars`" + ` o
  JOIN ` + "`{project}.analytics.person`" + ` p ON LOWER(p.primary_name) = LOWER(o.name)
  JOIN ` + "`{project}.analytics.movie`" + ` m ON LOWER(o.film) = LOWER(m.primary_title) AND o.year_filme = CAST(m.start_year AS INT64)
  JOIN ` + "`{project}.analytics.movie_person`" + ` mp ON mp.nconst = p.nconst AND m.tconst = mp.tconst
),
oscars_movie AS (
  SELECT
    o.year_ceremony AS award_year,
    o.category AS award_category,
    o.winner AS award_winner,
    o.film AS film,
    o.name AS person_name,
    m.tconst AS tconst,
    CAST(NULL AS STRING) AS nconst
  FROM ` + "`{project}.awards.oscars`" + ` o
  JOIN ` + "`{project}.analytics.movie`" + ` m ON LOWER(o.film) = LOWER(m.primary_title) AND o.year_filme = CAST(m.start_year AS INT64)
),
all_oscars AS (
  SELECT * FROM oscars_movie
  UNION ALL
  SELECT * FROM oscars_person
)
SELECT
  'oscars' AS award_name,
  a.award_year,
  a.award_category,
  a.award_winner,
  a.film,
  a.person_name,
  MAX(a.tconst) AS tconst,
  MAX(a.nconst) AS nconst
FROM all_oscars a
GROUP BY 1, 2, 3, 4, 5, 6`

const awardGoldenGlobeSQL = `
WITH golden_globe_person AS (
  SELECT
    gg.year_award AS award_year,
    gg.category AS award_category,
    gg.win AS award_winner,
    gg.film AS film,
    gg.nominee AS person_name,
    m.tconst AS tconst,
    p.nconst AS nconst
  FROM ` + "`{project}.awards.golden_globe`" + ` gg
  JOIN ` + "`{project}.analytics.person`" + ` p ON LOWER(p.primary_name) = LOWER(gg.nominee)
  JOIN ` + "`{project}.analytics.movie`" + ` m ON LOWER(gg.film) = LOWER(m.primary_title) AND gg.year_film = CAST(m.start_year AS INT64)
  JOIN ` + "`{project}.analytics.movie_person`" + ` mp ON mp.nconst = p.nconst AND m.tconst = mp.tconst
  WHERE gg.category NOT LIKE '%Television%' AND gg.category NOT LIKE '%Series%'
),
golden_globe_movie AS (
  SELECT
    gg.year_award AS award_year,
    gg.category AS award_category,
    gg.win AS award_winner,
    gg.film AS film,
    gg.nominee AS person_name,
    m.tconst AS tconst,
    CAST(NULL AS STRING) AS nconst
  FROM ` + "`{project}.awards.golden_globe`" + ` gg
  JOIN ` + "`{project}.analytics.movie`" + ` m ON LOWER(gg.film) = LOWER(m.primary_title) AND gg.year_film = CAST(m.start_year AS INT64)
  WHERE gg.category NOT LIKE '%Television%' AND gg.category NOT LIKE '%Series%'
),
all_golden_globe AS (
  SELECT * FROM golden_globe_movie
  UNION ALL
  SELECT * FROM golden_globe_person
)
SELECT
  'golden_globe' AS award_name,
  a.award_year,
  a.award_category,
  a.award_winner,
  a.film,
  a.person_name,
  MAX(a.tconst) AS tconst,
  MAX(a.nconst) AS nconst
FROM all_golden_globe a
GROUP BY 1, 2, 3, 4, 5, 6`

const awardSagaSQL = `
SELECT
  'saga' AS award_name,
  CAST(SUBSTR(saga.year, 0, 4) AS INT64) AS award_year,
  saga.category AS award_category,
  saga.won AS award_winner,
  saga.show AS film,
  saga.full_name AS person_name,
  m.tconst AS tconst,
  p.nconst AS nconst
FROM ` + "`{project}.awards.saga`" + ` saga
JOIN ` + "`{project}.analytics.person`" + ` p ON LOWER(p.primary_name) = LOWER(saga.full_name)
JOIN ` + "`{project}.analytics.movie`" + ` m ON LOWER(saga.show) = LOWER(m.primary_title)
JOIN ` + "`{project}.analytics.movie_person`" + ` mp ON mp.nconst = p.nconst AND m.tconst = mp.tconst
WHERE LOWER(saga.category) NOT LIKE '%television%'
  AND LOWER(saga.category) NOT LIKE '%series%'
  AND saga.year IS NOT NULL`

// AnalyticsTableNames lists the analytics tables in build order. Later
// tables join against movie, person and movie_person.
var AnalyticsTableNames = []string{
	"movie", "person", "movie_person", "genre", "rating", "tag", "production_company", "award",
}

// MovieAnalytics returns the BigQuery analytics build for project, in
// dependency order.
func MovieAnalytics(project string) []AnalyticsTable {
	sub := func(sql string) string {
		return strings.TrimSpace(strings.ReplaceAll(sql, projectPlaceholder, project))
	}
	single := func(name, sql string) AnalyticsTable {
		return AnalyticsTable{
			Name:    name,
			Dataset: AnalyticsSchemaName,
			Parts:   []QueryPart{{Name: name, SQL: sub(sql), Disposition: WriteTruncate}},
		}
	}

	return []AnalyticsTable{
		single("movie", movieSQL),
		single("person", personSQL),
		single("movie_person", moviePersonSQL),
		single("genre", genreSQL),
		single("rating", ratingSQL),
		single("tag", tagSQL),
		single("production_company", productionCompanySQL),
		{
			Name:    "award",
			Dataset: AnalyticsSchemaName,
			Reset:   true,
			Parts: []QueryPart{
				{Name: "oscars", SQL: sub(awardOscarsSQL), Disposition: WriteAppend},
				{Name: "golden_globe", SQL: sub(awardGoldenGlobeSQL), Disposition: WriteAppend},
				{Name: "saga", SQL: sub(awardSagaSQL), Disposition: WriteAppend},
			},
		},
	}
}

// FindAnalyticsTable looks up one table of the analytics build.
func FindAnalyticsTable(project, name string) (AnalyticsTable, bool) {
	for _, t := range MovieAnalytics(project) {
		if t.Name == name {
			return t, true
		}
	}
	return AnalyticsTable{}, false
}
