// Package sqlcatalog holds the fixed DDL and DML used to build the sparkify
// and movie-analytics warehouses.
package sqlcatalog

import (
	"fmt"
	"strings"

	"starflow/pkg/models"
)

// Sparkify table names, in drop/create order
var SparkifyTables = []string{"stg_events", "stg_songs", "songplays", "users", "songs", "artists", "times"}

const createStagingEvents = `
CREATE TABLE "stg_events" (
    "artist" varchar(2048) NULL,
    "auth" varchar(2048) NOT NULL,
    "firstName" varchar(2048) NULL,
    "gender" varchar(1) NULL,
    "itemInSession" int NOT NULL,
    "lastName" varchar(2048) NULL,
    "length" numeric(16,8) NULL,
    "level" varchar(16) NULL,
    "location" varchar(2048) NULL,
    "method" varchar(8) NOT NULL,
    "page" varchar(16) NOT NULL,
    "registration" numeric(16,1) NULL,
    "sessionId" int NOT NULL,
    "song" varchar(2048) NULL,
    "status" int NULL,
    "ts" bigint NOT NULL,
    "userAgent" varchar(2048) NULL,
    "userId" int NULL
)`

const createStagingSongs = `
CREATE TABLE "stg_songs" (
    "num_songs" int NOT NULL,
    "artist_id" varchar(256) NOT NULL,
    "artist_latitude" numeric(8,2) NULL,
    "artist_longitude" numeric(8,2) NULL,
    "artist_location" varchar(2048) NOT NULL,
    "artist_name" varchar(2048) NOT NULL,
    "song_id" varchar(256) NOT NULL,
    "title" varchar(2048) NOT NULL,
    "duration" numeric(16,8) NULL,
    "year" int NULL
)`

const createSongplays = `
CREATE TABLE "songplays" (
    "songplay_id" int IDENTITY(0,1) NOT NULL,
    "start_time" timestamp NOT NULL,
    "user_id" int NOT NULL,
    "level" varchar(16) NULL,
    "song_id" varchar(256) NOT NULL,
    "artist_id" varchar(256) NOT NULL,
    "session_id" int NOT NULL,
    "location" varchar(128) NOT NULL,
    "user_agent" varchar(2048) NOT NULL
)`

const createUsers = `
CREATE TABLE "users" (
    "user_id" int UNIQUE NOT NULL,
    "first_name" varchar(2048) NULL,
    "last_name" varchar(2048) NULL,
    "gender" varchar(1) NULL,
    "level" varchar(16) NULL
)`

const createSongs = `
CREATE TABLE "songs" (
    "song_id" varchar(256) UNIQUE NOT NULL,
    "artist_id" varchar(256) NOT NULL,
    "title" varchar(2048) NOT NULL,
    "duration" numeric(16,8) NULL,
    "year" int NOT NULL
)`

const createArtists = `
CREATE TABLE "artists" (
    "artist_id" varchar(256) UNIQUE NOT NULL,
    "name" varchar(2048) NOT NULL,
    "latitude" numeric(8,2) NULL,
    "longitude" numeric(8,2) NULL,
    "location" varchar(2048) NOT NULL
)`

const createTimes = `
CREATE TABLE "times" (
    "start_time" timestamp UNIQUE NOT NULL,
    "hour" int NOT NULL,
    "day" int NOT NULL,
    "week" int NOT NULL,
    "month" int NOT NULL,
    "year" int NOT NULL,
    "weekday" varchar(16) NOT NULL
)`

// Load is one INSERT ... SELECT step into a star-schema table.
type Load struct {
	Table   string
	Columns []string
	Select  string
}

// SQL renders the load with InsertTemplate.
func (l Load) SQL() string {
	return Insert(l.Table, l.Columns, l.Select)
}

var (
	SongplaysLoad = Load{
		Table:   "songplays",
		Columns: []string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"},
		Select: `SELECT
        TIMESTAMP 'epoch' + ev.ts/1000 * INTERVAL '1 second' AS start_time,
        ev.userId AS user_id,
        ev.level,
        s.song_id,
        s.artist_id,
        ev.sessionId AS session_id,
        ev.location,
        ev.userAgent AS user_agent
    FROM stg_events ev
    JOIN stg_songs s ON ev.song = s.title
    WHERE ev.page = 'NextSong'`,
	}

	// UsersLoad keeps one row per user, taken from their latest event, so
	// level reflects the current subscription.
	UsersLoad = Load{
		Table:   "users",
		Columns: []string{"user_id", "first_name", "last_name", "gender", "level"},
		Select: `SELECT user_id, first_name, last_name, gender, level
    FROM (
        SELECT
            userId AS user_id,
            firstName AS first_name,
            lastName AS last_name,
            gender,
            level,
            ROW_NUMBER() OVER (PARTITION BY userId ORDER BY ts DESC) AS event_rank
        FROM stg_events
        WHERE userId IS NOT NULL
    ) latest
    WHERE event_rank = 1`,
	}

	SongsLoad = Load{
		Table:   "songs",
		Columns: []string{"song_id", "artist_id", "title", "duration", "year"},
		Select: `SELECT DISTINCT
        song_id,
        artist_id,
        title,
        duration,
        year
    FROM stg_songs`,
	}

	ArtistsLoad = Load{
		Table:   "artists",
		Columns: []string{"artist_id", "name", "longitude", "latitude", "location"},
		Select: `SELECT DISTINCT
        artist_id,
        artist_name AS name,
        artist_longitude AS longitude,
        artist_latitude AS latitude,
        artist_location AS location
    FROM stg_songs`,
	}

	// TimesLoad derives from songplays, so it must run after SongplaysLoad.
	TimesLoad = Load{
		Table:   "times",
		Columns: []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		Select: `SELECT DISTINCT
        start_time,
        EXTRACT(hour FROM start_time) AS hour,
        EXTRACT(day FROM start_time) AS day,
        EXTRACT(week FROM start_time) AS week,
        EXTRACT(month FROM start_time) AS month,
        EXTRACT(year FROM start_time) AS year,
        TRIM(TO_CHAR(start_time, 'Day')) AS weekday
    FROM songplays`,
	}
)

// Catalog is an ordered set of statements for one warehouse build.
type Catalog struct {
	Drop   []string
	Create []string
	Copy   []string
	Insert []string
}

// Sparkify builds the music warehouse statements from a profile.
func Sparkify(cfg *models.Config) Catalog {
	drops := make([]string, 0, len(SparkifyTables))
	for _, t := range SparkifyTables {
		drops = append(drops, "DROP TABLE IF EXISTS "+t)
	}

	return Catalog{
		Drop: drops,
		Create: []string{
			createStagingEvents,
			createStagingSongs,
			createSongplays,
			createUsers,
			createSongs,
			createArtists,
			createTimes,
		},
		Copy: []string{
			StagingEventsCopy(cfg),
			StagingSongsCopy(cfg),
		},
		Insert: []string{
			SongplaysLoad.SQL(),
			UsersLoad.SQL(),
			SongsLoad.SQL(),
			ArtistsLoad.SQL(),
			TimesLoad.SQL(),
		},
	}
}

// StagingEventsCopy loads the event log JSON using the JSONPaths file.
func StagingEventsCopy(cfg *models.Config) string {
	return fmt.Sprintf(`COPY stg_events FROM %s
    IAM_ROLE %s
    REGION %s
    FORMAT AS JSON %s`,
		Literal(cfg.S3.LogData), Literal(cfg.IAMRole.ARN), Literal(region(cfg)), Literal(cfg.S3.LogJSONPath))
}

// StagingSongsCopy loads the song metadata JSON with automatic field mapping.
func StagingSongsCopy(cfg *models.Config) string {
	return fmt.Sprintf(`COPY stg_songs FROM %s
    IAM_ROLE %s
    REGION %s
    COMPUPDATE OFF STATUPDATE OFF
    JSON 'auto'`,
		Literal(cfg.S3.SongData), Literal(cfg.IAMRole.ARN), Literal(region(cfg)))
}

func region(cfg *models.Config) string {
	if cfg.Cluster.Region != "" {
		return cfg.Cluster.Region
	}
	return "us-west-2"
}

// Literal renders v as a single-quoted SQL string. Profiles often carry the
// quotes already, so existing outer quotes are stripped first.
func Literal(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '\'' && v[len(v)-1] == '\'' || v[0] == '"' && v[len(v)-1] == '"') {
		v = v[1 : len(v)-1]
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
