package lake

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/pkg/errors"
)

const songFixture = `{"num_songs": 1, "artist_id": "A2", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Other", "song_id": "S3", "title": "Intro", "duration": 180, "year": 1999}`

const logFixture = `{"artist":"Other","auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":180,"level":"free","location":"SF","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":38,"song":"Intro","status":200,"ts":1541105830796,"userAgent":"ua","userId":"39"}
{"artist":null,"auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":null,"level":"free","location":"Phoenix","method":"GET","page":"Home","registration":1540344794796.0,"sessionId":139,"song":null,"status":200,"ts":1541106106796,"userAgent":"ua","userId":"8"}
{"artist":"Nobody","auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":1,"lastName":"Cruz","length":99,"level":"free","location":"DC","method":"PUT","page":"NextSong","registration":1540266185796.0,"sessionId":9,"song":"Missing","status":200,"ts":1541107053796,"userAgent":"ua","userId":10}`

func writeFixtures(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"song_data/A/A/A/TRAAAAA.json":            songFixture,
		"log_data/2018/11/2018-11-01-events.json": logFixture,
		"log_data/README.md":                      "not data",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestLocalSourceList(t *testing.T) {
	src := &LocalSource{Root: writeFixtures(t)}
	keys, err := src.List(context.Background(), LogDataPrefix, ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{"log_data/2018/11/2018-11-01-events.json"}, keys)

	_, err = src.List(context.Background(), "missing", ".json")
	assert.Equal(t, errors.ErrCodeStorageList, errors.GetErrorCode(err))
}

func TestReadAll(t *testing.T) {
	src := &LocalSource{Root: writeFixtures(t)}
	songs, err := ReadSongs(context.Background(), src, 2)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "S3", songs[0].SongID)

	events, err := ReadLogs(context.Background(), src, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, FlexString("10"), events[2].UserID)
}

func TestJobRunLocal(t *testing.T) {
	input := writeFixtures(t)
	output := filepath.Join(t.TempDir(), "lake")

	job := &Job{Input: input, Output: output, Workers: 2}
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Songs)
	assert.Equal(t, 3, res.Events)
	require.Len(t, res.Tables, len(Tables))

	rows := map[string]int{}
	for i, stats := range res.Tables {
		assert.Equal(t, Tables[i], stats.Table)
		rows[stats.Table] = stats.Rows
	}
	assert.Equal(t, map[string]int{"songs": 1, "artists": 1, "users": 2, "times": 2, "songplays": 1}, rows)
	assert.DirExists(t, filepath.Join(output, "songs", "year=1999", "artist_id=A2"))
	assert.FileExists(t, filepath.Join(output, "songplays", "year=2018", "month=11", partFile))
}

func TestJobRejectsGCSOutput(t *testing.T) {
	job := &Job{Input: writeFixtures(t), Output: "gs://bucket/lake"}
	_, err := job.Run(context.Background())
	assert.Equal(t, errors.ErrCodeInvalidURI, errors.GetErrorCode(err))
}

func TestJobS3InputNeedsSession(t *testing.T) {
	job := &Job{Input: "s3://udacity-dend/", Output: t.TempDir()}
	_, err := job.Run(context.Background())
	assert.Equal(t, errors.ErrCodeCredentials, errors.GetErrorCode(err))
}

type recordingSink struct {
	cleared  []string
	uploaded []string
	files    map[string][]string
}

func (r *recordingSink) Clear(ctx context.Context, table string) error {
	r.cleared = append(r.cleared, table)
	return nil
}

func (r *recordingSink) Upload(ctx context.Context, dir, table string) (int, error) {
	r.uploaded = append(r.uploaded, table)
	var files []string
	err := filepath.WalkDir(filepath.Join(dir, table), func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(dir, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return err
	})
	r.files[table] = files
	return len(files), err
}

func TestJobRunS3Output(t *testing.T) {
	rec := &recordingSink{files: map[string][]string{}}
	job := &Job{
		Input:  writeFixtures(t),
		Output: "s3://lake-out/sparkify",
		newSink: func(uri string, sess *session.Session) (sink, error) {
			assert.Equal(t, "s3://lake-out/sparkify", uri)
			return rec, nil
		},
	}

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Tables, rec.cleared)
	assert.Equal(t, Tables, rec.uploaded)
	assert.Equal(t, []string{"users/" + partFile}, rec.files["users"])
	for _, stats := range res.Tables {
		assert.Equal(t, len(rec.files[stats.Table]), stats.Files, stats.Table)
		for _, f := range rec.files[stats.Table] {
			assert.True(t, strings.HasSuffix(f, ".parquet"), f)
		}
	}
}
