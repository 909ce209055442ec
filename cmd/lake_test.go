package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/lake"
	"starflow/internal/testutil"
	"starflow/pkg/errors"
)

const (
	songJSON = `{"num_songs": 1, "artist_id": "ARJIE2Y1187B994AB7", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Line Renaud", "song_id": "SOUPIRU12A6D4FA1E1", "title": "Der Kleine Dompfaff", "duration": 152.92036, "year": 0}`
	logJSON  = `{"artist":"Line Renaud","auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":152.92036,"level":"free","location":"San Francisco","method":"PUT","page":"NextSong","registration":1540919166796.0,"sessionId":38,"song":"Der Kleine Dompfaff","status":200,"ts":1541105830796,"userAgent":"ua","userId":"39"}
{"artist":null,"auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":null,"level":"free","location":"Phoenix","method":"GET","page":"Home","registration":1540344794796.0,"sessionId":139,"song":null,"status":200,"ts":1541106106796,"userAgent":"ua","userId":"8"}`
)

func writeRawData(t *testing.T) string {
	t.Helper()
	h := testutil.NewTestHelper(t)
	root := t.TempDir()
	h.WriteFile(root, "song_data/A/B/C/TRABCEI128F424C983.json", songJSON)
	h.WriteFile(root, "log_data/2018/11/2018-11-01-events.json", logJSON)
	return root
}

func TestLakeRun(t *testing.T) {
	inTempDir(t)
	input := writeRawData(t)
	output := filepath.Join(t.TempDir(), "lake")

	out, err := execute(t, "lake", "run", "--input", input, "--output", output, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Read 1 songs and 2 events")

	for _, table := range lake.Tables {
		assert.DirExists(t, filepath.Join(output, table))
		assert.Contains(t, out, table)
	}
	assert.DirExists(t, filepath.Join(output, "songs", "year=0", "artist_id=ARJIE2Y1187B994AB7"))
	assert.DirExists(t, filepath.Join(output, "songplays", "year=2018", "month=11"))
}

func TestLakeRunUsesProfileDefaults(t *testing.T) {
	inTempDir(t)
	input := writeRawData(t)
	output := filepath.Join(t.TempDir(), "lake")
	path := writeProfile(t, "[LAKE]\nINPUT = "+input+"\nOUTPUT = "+output+"\n")

	_, err := execute(t, "--config", path, "lake", "run")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(output, "users"))
}

func TestLakeRunRequiresLocations(t *testing.T) {
	inTempDir(t)

	_, err := execute(t, "lake", "run")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "LAKE.INPUT")
}

func TestLakeRunRejectsGCSOutput(t *testing.T) {
	inTempDir(t)
	input := writeRawData(t)

	_, err := execute(t, "lake", "run", "--input", input, "--output", "gs://bucket/lake")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidURI, errors.GetErrorCode(err))
}

func TestLakeInspect(t *testing.T) {
	if testing.Short() {
		t.Skip("opens an embedded DuckDB")
	}
	inTempDir(t)
	input := writeRawData(t)
	output := filepath.Join(t.TempDir(), "lake")

	_, err := execute(t, "lake", "run", "--input", input, "--output", output)
	require.NoError(t, err)

	out, err := execute(t, "lake", "inspect", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "rows:songplays")
	assert.Contains(t, out, "lake checks passed")

	missing := filepath.Join(t.TempDir(), "nothing")
	require.NoError(t, os.MkdirAll(missing, 0o755))
	_, err = execute(t, "lake", "inspect", "--output", missing)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageRead, errors.GetErrorCode(err))
}

func TestLakeInspectValidation(t *testing.T) {
	inTempDir(t)

	_, err := execute(t, "lake", "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lake directory given")

	_, err = execute(t, "lake", "inspect", "--output", "s3://bucket/lake")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidURI, errors.GetErrorCode(err))
}
