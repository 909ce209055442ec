package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/pkg/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		scheme string
		bucket string
		key    string
	}{
		{"s3://udacity-dend/song_data", SchemeS3, "udacity-dend", "song_data"},
		{"'s3://udacity-dend/log_data/'", SchemeS3, "udacity-dend", "log_data"},
		{"s3a://lake-out/", SchemeS3, "lake-out", ""},
		{"gs://udacity-de/imdb/name.basics.tsv.gz", SchemeGCS, "udacity-de", "imdb/name.basics.tsv.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			loc, err := ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, loc.Scheme)
			assert.Equal(t, tt.bucket, loc.Bucket)
			assert.Equal(t, tt.key, loc.Key)
		})
	}
}

func TestParseURILocal(t *testing.T) {
	dir := t.TempDir()
	loc, err := ParseURI(dir)
	require.NoError(t, err)
	assert.Equal(t, SchemeFile, loc.Scheme)
	assert.Equal(t, filepath.Clean(dir), loc.Path)
	assert.Equal(t, loc.Path, loc.String())

	loc, err = ParseURI("file://" + dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), loc.Path)
}

func TestParseURIErrors(t *testing.T) {
	for _, uri := range []string{"", "ftp://host/x", "s3:///key", "../../etc"} {
		_, err := ParseURI(uri)
		require.Error(t, err, uri)
		assert.Equal(t, errors.ErrCodeInvalidURI, errors.GetErrorCode(err), uri)
	}
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "s3://b/k", Location{Scheme: SchemeS3, Bucket: "b", Key: "k"}.String())
	assert.Equal(t, "gs://b", Location{Scheme: SchemeGCS, Bucket: "b"}.String())
}

func TestCleanPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"absolute", filepath.Join(dir, "dwh.cfg"), filepath.Join(dir, "dwh.cfg"), false},
		{"dots inside a name", filepath.Join(dir, "a..b.json"), filepath.Join(dir, "a..b.json"), false},
		{"resolved parent", filepath.Join(dir, "x", "..", "dwh.cfg"), filepath.Join(dir, "dwh.cfg"), false},
		{"relative traversal", filepath.Join("..", "secrets", "dwh.cfg"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidURI, errors.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	rel, err := CleanPath("lake..v2")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(rel))
	assert.Equal(t, "lake..v2", filepath.Base(rel))
}
