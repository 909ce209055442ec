package lake

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"

	"starflow/internal/common"
	"starflow/internal/observability"
	"starflow/pkg/errors"
)

// Job reads raw song and log files from Input and writes the five
// lake tables under Output.
type Job struct {
	Input   string
	Output  string
	Workers int
	Session *session.Session

	// newSink is replaced in tests.
	newSink func(uri string, sess *session.Session) (sink, error)
}

type sink interface {
	Clear(ctx context.Context, table string) error
	Upload(ctx context.Context, dir, table string) (int, error)
}

// Result of a lake run.
type Result struct {
	Input    string
	Output   string
	Songs    int
	Events   int
	Tables   []TableStats
	Duration time.Duration
}

// Run executes the job. Each table directory is replaced as a whole.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	logger := observability.GetDefaultLogger().WithFields(map[string]interface{}{
		"component": "lake",
		"input":     j.Input,
		"output":    j.Output,
	})

	out, err := common.ParseURI(j.Output)
	if err != nil {
		return nil, err
	}
	if out.Scheme == common.SchemeGCS {
		return nil, errors.New(errors.ErrCodeInvalidURI, "Lake output must be a local path or an s3:// URI").
			WithContext("output", j.Output)
	}

	src, err := NewSource(j.Input, j.Session)
	if err != nil {
		return nil, err
	}

	records, err := ReadSongs(ctx, src, j.Workers)
	if err != nil {
		return nil, err
	}
	events, err := ReadLogs(ctx, src, j.Workers)
	if err != nil {
		return nil, err
	}
	logger.Infof("Read %d song records and %d log events", len(records), len(events))

	dir := out.Path
	var publish sink
	if out.Scheme == common.SchemeS3 {
		newSink := j.newSink
		if newSink == nil {
			newSink = func(uri string, sess *session.Session) (sink, error) { return NewS3Sink(uri, sess) }
		}
		if publish, err = newSink(j.Output, j.Session); err != nil {
			return nil, err
		}
		if dir, err = os.MkdirTemp("", "starflow-lake-"); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create staging directory")
		}
		defer os.RemoveAll(dir)
	}

	writers := []func() (TableStats, error){
		func() (TableStats, error) { return WriteSongs(dir, Songs(records)) },
		func() (TableStats, error) { return WriteArtists(dir, Artists(records)) },
		func() (TableStats, error) { return WriteUsers(dir, Users(events)) },
		func() (TableStats, error) { return WriteTimes(dir, Times(events)) },
		func() (TableStats, error) { return WriteSongplays(dir, Songplays(events, records)) },
	}

	result := &Result{Input: src.String(), Output: j.Output, Songs: len(records), Events: len(events)}
	for _, write := range writers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats, err := write()
		if err != nil {
			return result, err
		}

		if publish != nil {
			if err := publish.Clear(ctx, stats.Table); err != nil {
				return result, err
			}
			if stats.Files, err = publish.Upload(ctx, dir, stats.Table); err != nil {
				return result, err
			}
		}

		logger.InfoWithFields("Wrote lake table", map[string]interface{}{
			"table":      stats.Table,
			"rows":       stats.Rows,
			"files":      stats.Files,
			"partitions": len(stats.Partitions),
		})
		result.Tables = append(result.Tables, stats)
	}

	result.Duration = time.Since(start)
	return result, nil
}
