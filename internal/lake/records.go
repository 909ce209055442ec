// Package lake reshapes raw song metadata and listening logs into a
// partitioned Parquet data lake.
package lake

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// SongRecord is one song_data file.
type SongRecord struct {
	NumSongs        int      `json:"num_songs"`
	ArtistID        string   `json:"artist_id"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistName      string   `json:"artist_name"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	Year            int      `json:"year"`
}

// LogEvent is one line of a log_data file.
type LogEvent struct {
	Artist        string     `json:"artist"`
	Auth          string     `json:"auth"`
	FirstName     string     `json:"firstName"`
	Gender        string     `json:"gender"`
	ItemInSession int        `json:"itemInSession"`
	LastName      string     `json:"lastName"`
	Length        float64    `json:"length"`
	Level         string     `json:"level"`
	Location      string     `json:"location"`
	Method        string     `json:"method"`
	Page          string     `json:"page"`
	Registration  float64    `json:"registration"`
	SessionID     int64      `json:"sessionId"`
	Song          string     `json:"song"`
	Status        int        `json:"status"`
	TS            int64      `json:"ts"`
	UserAgent     string     `json:"userAgent"`
	UserID        FlexString `json:"userId"`
}

// FlexString accepts a JSON string, number or null.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

// NextSong is the page of a log event that records a song play.
const NextSong = "NextSong"

// Song row.
type Song struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

// Artist row.
type Artist struct {
	ArtistID  string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// User row.
type User struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Time row.
type Time struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   string
}

// Songplay row.
type Songplay struct {
	SongplayID int64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     string
	ArtistID   string
	SessionID  int64
	Location   string
	UserAgent  string
	Year       int
	Month      int
}

// Songs returns the distinct songs.
func Songs(records []SongRecord) []Song {
	seen := make(map[Song]bool, len(records))
	songs := make([]Song, 0, len(records))
	for _, r := range records {
		s := Song{SongID: r.SongID, Title: r.Title, ArtistID: r.ArtistID, Year: r.Year, Duration: r.Duration}
		if s.SongID == "" || seen[s] {
			continue
		}
		seen[s] = true
		songs = append(songs, s)
	}
	return songs
}

type artistKey struct {
	id, name, location string
	lat, lon           string
}

func floatKey(f *float64) string {
	if f == nil {
		return "null"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

// Artists returns the distinct artists.
func Artists(records []SongRecord) []Artist {
	seen := make(map[artistKey]bool, len(records))
	artists := make([]Artist, 0, len(records))
	for _, r := range records {
		if r.ArtistID == "" {
			continue
		}
		k := artistKey{r.ArtistID, r.ArtistName, r.ArtistLocation, floatKey(r.ArtistLatitude), floatKey(r.ArtistLongitude)}
		if seen[k] {
			continue
		}
		seen[k] = true
		artists = append(artists, Artist{
			ArtistID:  r.ArtistID,
			Name:      r.ArtistName,
			Location:  r.ArtistLocation,
			Latitude:  r.ArtistLatitude,
			Longitude: r.ArtistLongitude,
		})
	}
	return artists
}

// Users returns one row per user seen on a NextSong event. The latest
// event wins, so level is the user's current subscription.
func Users(events []LogEvent) []User {
	latest := make(map[string]LogEvent)
	var order []string
	for _, e := range events {
		id := string(e.UserID)
		if e.Page != NextSong || id == "" {
			continue
		}
		prev, ok := latest[id]
		if !ok {
			order = append(order, id)
		}
		if !ok || e.TS >= prev.TS {
			latest[id] = e
		}
	}

	users := make([]User, 0, len(order))
	for _, id := range order {
		e := latest[id]
		users = append(users, User{
			UserID:    id,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		})
	}
	return users
}

// StartTime converts an epoch-millisecond timestamp to UTC.
func StartTime(ts int64) time.Time {
	return time.UnixMilli(ts).UTC()
}

// Times returns one row per distinct NextSong timestamp.
func Times(events []LogEvent) []Time {
	seen := make(map[int64]bool)
	var times []Time
	for _, e := range events {
		if e.Page != NextSong || seen[e.TS] {
			continue
		}
		seen[e.TS] = true

		t := StartTime(e.TS)
		_, week := t.ISOWeek()
		times = append(times, Time{
			StartTime: t,
			Hour:      t.Hour(),
			Day:       t.Day(),
			Week:      week,
			Month:     int(t.Month()),
			Year:      t.Year(),
			Weekday:   t.Weekday().String(),
		})
	}
	return times
}

// Songplays joins NextSong events to songs on title, artist name and
// duration, falling back to title alone. Events matching no song are
// dropped.
func Songplays(events []LogEvent, songs []SongRecord) []Songplay {
	byTitle := make(map[string][]SongRecord)
	for _, s := range songs {
		byTitle[s.Title] = append(byTitle[s.Title], s)
	}

	var plays []Songplay
	var id int64
	for _, e := range events {
		if e.Page != NextSong {
			continue
		}
		song, ok := matchSong(e, byTitle[e.Song])
		if !ok {
			continue
		}

		t := StartTime(e.TS)
		plays = append(plays, Songplay{
			SongplayID: id,
			StartTime:  t,
			UserID:     string(e.UserID),
			Level:      e.Level,
			SongID:     song.SongID,
			ArtistID:   song.ArtistID,
			SessionID:  e.SessionID,
			Location:   e.Location,
			UserAgent:  e.UserAgent,
			Year:       t.Year(),
			Month:      int(t.Month()),
		})
		id++
	}
	return plays
}

func matchSong(e LogEvent, candidates []SongRecord) (SongRecord, bool) {
	if len(candidates) == 0 {
		return SongRecord{}, false
	}
	for _, s := range candidates {
		if s.ArtistName == e.Artist && math.Abs(s.Duration-e.Length) < 1e-6 {
			return s, true
		}
	}
	return candidates[0], true
}
