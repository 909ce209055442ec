package lake

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"starflow/pkg/errors"
)

// Input layout under the source root.
const (
	SongDataPrefix = "song_data"
	LogDataPrefix  = "log_data"
)

// DefaultWorkers bounds concurrent file fetches.
const DefaultWorkers = 8

// ReadSongs decodes every song_data JSON file.
func ReadSongs(ctx context.Context, src Source, workers int) ([]SongRecord, error) {
	return readAll[SongRecord](ctx, src, SongDataPrefix, workers)
}

// ReadLogs decodes every log_data file, one event per line.
func ReadLogs(ctx context.Context, src Source, workers int) ([]LogEvent, error) {
	return readAll[LogEvent](ctx, src, LogDataPrefix, workers)
}

// readAll fetches files concurrently and returns their records in key
// order, so results do not depend on scheduling.
func readAll[T any](ctx context.Context, src Source, prefix string, workers int) ([]T, error) {
	keys, err := src.List(ctx, prefix, ".json")
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	perFile := make([][]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rc, err := src.Open(gctx, key)
			if err != nil {
				return err
			}
			defer rc.Close()

			records, err := decodeStream[T](rc)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageRead, "Failed to decode "+key).
					WithContext("source", src.String())
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []T
	for _, records := range perFile {
		all = append(all, records...)
	}
	return all, nil
}

// decodeStream reads concatenated or newline-delimited JSON objects.
func decodeStream[T any](r io.Reader) ([]T, error) {
	dec := json.NewDecoder(r)
	var out []T
	for {
		var v T
		err := dec.Decode(&v)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
