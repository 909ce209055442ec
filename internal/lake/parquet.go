package lake

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"starflow/internal/common"
	"starflow/pkg/errors"
)

// File rows. Partition columns live in the directory names, not the files.

type songFile struct {
	SongID   string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title    string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Duration float64 `parquet:"name=duration, type=DOUBLE"`
}

type artistFile struct {
	ArtistID  string   `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name      string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location  string   `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type userFile struct {
	UserID    string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type timeFile struct {
	StartTime int64  `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour      int32  `parquet:"name=hour, type=INT32"`
	Day       int32  `parquet:"name=day, type=INT32"`
	Week      int32  `parquet:"name=week, type=INT32"`
	Weekday   string `parquet:"name=weekday, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type songplayFile struct {
	SongplayID int64  `parquet:"name=songplay_id, type=INT64"`
	StartTime  int64  `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID     string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level      string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	SongID     string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtistID   string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SessionID  int64  `parquet:"name=session_id, type=INT64"`
	Location   string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent  string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableStats reports what was written for one table.
type TableStats struct {
	Table      string
	Rows       int
	Files      int
	Partitions []string
}

// Partition is one hive-style key=value directory level.
type Partition struct {
	Key   string
	Value string
}

func partitionDir(parts []Partition) string {
	segs := make([]string, len(parts))
	for i, p := range parts {
		v := p.Value
		if v == "" {
			v = "__HIVE_DEFAULT_PARTITION__"
		}
		segs[i] = p.Key + "=" + url.PathEscape(v)
	}
	return filepath.Join(segs...)
}

// partFile is the single file written per partition directory.
const partFile = "part-00000.snappy.parquet"

// writeTable replaces dir/table with rows grouped by partition.
func writeTable[T any, R any](dir, table string, rows []T, partition func(T) []Partition, convert func(T) R) (TableStats, error) {
	stats := TableStats{Table: table}
	root := filepath.Join(dir, table)
	if err := os.RemoveAll(root); err != nil {
		return stats, errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to clear "+root)
	}

	groups := map[string][]R{}
	for _, row := range rows {
		key := ""
		if partition != nil {
			key = partitionDir(partition(row))
		}
		groups[key] = append(groups[key], convert(row))
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		keys = []string{""}
	}

	for _, key := range keys {
		target := filepath.Join(root, key, partFile)
		if err := writeParquet(target, groups[key]); err != nil {
			return stats, err
		}
		stats.Files++
		if key != "" {
			stats.Partitions = append(stats.Partitions, filepath.ToSlash(key))
		}
	}
	stats.Rows = len(rows)
	return stats, nil
}

func writeParquet[R any](path string, rows []R) error {
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to create "+filepath.Dir(path))
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to create "+path)
	}

	pw, err := writer.NewParquetWriter(fw, new(R), 4)
	if err != nil {
		fw.Close()
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to create parquet writer")
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		if err := pw.Write(row); err != nil {
			fw.Close()
			return errors.Wrap(err, errors.ErrCodeStorageWrite, fmt.Sprintf("Failed to write row %d of %s", i, path))
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to finalize "+path)
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to close "+path)
	}
	return nil
}

// WriteSongs writes songs partitioned by year and artist_id.
func WriteSongs(dir string, songs []Song) (TableStats, error) {
	return writeTable(dir, "songs", songs,
		func(s Song) []Partition {
			return []Partition{{"year", fmt.Sprint(s.Year)}, {"artist_id", s.ArtistID}}
		},
		func(s Song) songFile {
			return songFile{SongID: s.SongID, Title: s.Title, Duration: s.Duration}
		})
}

// WriteArtists writes artists unpartitioned.
func WriteArtists(dir string, artists []Artist) (TableStats, error) {
	return writeTable(dir, "artists", artists, nil, func(a Artist) artistFile {
		return artistFile{
			ArtistID:  a.ArtistID,
			Name:      a.Name,
			Location:  a.Location,
			Latitude:  a.Latitude,
			Longitude: a.Longitude,
		}
	})
}

// WriteUsers writes users unpartitioned.
func WriteUsers(dir string, users []User) (TableStats, error) {
	return writeTable(dir, "users", users, nil, func(u User) userFile {
		return userFile(u)
	})
}

// WriteTimes writes times partitioned by year and month.
func WriteTimes(dir string, times []Time) (TableStats, error) {
	return writeTable(dir, "times", times,
		func(t Time) []Partition {
			return []Partition{{"year", fmt.Sprint(t.Year)}, {"month", fmt.Sprint(t.Month)}}
		},
		func(t Time) timeFile {
			return timeFile{
				StartTime: t.StartTime.UnixMilli(),
				Hour:      int32(t.Hour),
				Day:       int32(t.Day),
				Week:      int32(t.Week),
				Weekday:   t.Weekday,
			}
		})
}

// WriteSongplays writes songplays partitioned by year and month.
func WriteSongplays(dir string, plays []Songplay) (TableStats, error) {
	return writeTable(dir, "songplays", plays,
		func(p Songplay) []Partition {
			return []Partition{{"year", fmt.Sprint(p.Year)}, {"month", fmt.Sprint(p.Month)}}
		},
		func(p Songplay) songplayFile {
			return songplayFile{
				SongplayID: p.SongplayID,
				StartTime:  p.StartTime.UnixMilli(),
				UserID:     p.UserID,
				Level:      p.Level,
				SongID:     p.SongID,
				ArtistID:   p.ArtistID,
				SessionID:  p.SessionID,
				Location:   p.Location,
				UserAgent:  p.UserAgent,
			}
		})
}

// Tables lists the lake tables in write order.
var Tables = []string{"songs", "artists", "users", "times", "songplays"}

func isPartitioned(table string) bool {
	return !strings.EqualFold(table, "users") && !strings.EqualFold(table, "artists")
}
