package lake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"starflow/internal/common"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

// Source lists and opens raw input files.
type Source interface {
	// List returns the keys under prefix ending in suffix, sorted.
	List(ctx context.Context, prefix, suffix string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	String() string
}

// NewAWSSession creates a session from the profile's [default] keys,
// falling back to the SDK's credential chain.
func NewAWSSession(creds models.AWSCredentials, region string) (*session.Session, error) {
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	if creds.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(creds.AccessKeyID, creds.SecretAccessKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCredentials, "Failed to create AWS session").
			WithSuggestions("Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY in the [default] section")
	}
	return sess, nil
}

// NewSource returns an S3 source for s3:// URIs and a local one otherwise.
func NewSource(uri string, sess *session.Session) (Source, error) {
	loc, err := common.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == common.SchemeS3 {
		if sess == nil {
			return nil, errors.New(errors.ErrCodeCredentials, "An AWS session is required for "+uri)
		}
		return &S3Source{Bucket: loc.Bucket, Prefix: loc.Key, Client: s3.New(sess)}, nil
	}
	return &LocalSource{Root: loc.Path}, nil
}

// LocalSource reads from a directory tree.
type LocalSource struct {
	Root string
}

func (l *LocalSource) String() string { return l.Root }

func (l *LocalSource) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	root := filepath.Join(l.Root, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(p, suffix) {
			return nil
		}
		rel, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageList, "Failed to list "+root)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.Root, filepath.FromSlash(key)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "Failed to open "+key)
	}
	return f, nil
}

// S3Source reads objects under a bucket prefix.
type S3Source struct {
	Bucket string
	Prefix string
	Client s3iface.S3API
}

func (s *S3Source) String() string { return "s3://" + path.Join(s.Bucket, s.Prefix) }

func (s *S3Source) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	full := path.Join(s.Prefix, prefix)
	if full != "" && !strings.HasSuffix(full, "/") {
		full += "/"
	}

	var keys []string
	err := s.Client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket), Prefix: aws.String(full)},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if strings.HasSuffix(key, suffix) {
					keys = append(keys, strings.TrimPrefix(strings.TrimPrefix(key, s.Prefix), "/"))
				}
			}
			return !lastPage
		})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageList, "Failed to list "+s.String()).
			WithContext("prefix", full)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Source) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	buf := &aws.WriteAtBuffer{}
	downloader := s3manager.NewDownloaderWithClient(s.Client)
	_, err := downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(path.Join(s.Prefix, key)),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "Failed to download "+key)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// S3Sink publishes a locally written lake to a bucket prefix.
type S3Sink struct {
	Bucket string
	Prefix string
	Client s3iface.S3API
}

// NewS3Sink parses an s3:// output URI.
func NewS3Sink(uri string, sess *session.Session) (*S3Sink, error) {
	loc, err := common.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != common.SchemeS3 {
		return nil, errors.New(errors.ErrCodeInvalidURI, fmt.Sprintf("%s is not an s3:// URI", uri))
	}
	return &S3Sink{Bucket: loc.Bucket, Prefix: loc.Key, Client: s3.New(sess)}, nil
}

func (s *S3Sink) key(parts ...string) string {
	return path.Join(append([]string{s.Prefix}, parts...)...)
}

// Clear deletes every object under the table's prefix.
func (s *S3Sink) Clear(ctx context.Context, table string) error {
	iter := s3manager.NewDeleteListIterator(s.Client, &s3.ListObjectsInput{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.key(table) + "/"),
	})
	if err := s3manager.NewBatchDeleteWithClient(s.Client).Delete(ctx, iter); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to clear s3://"+s.Bucket+"/"+s.key(table))
	}
	return nil
}

// Upload copies every file under dir/table to the bucket, keeping the
// relative layout.
func (s *S3Sink) Upload(ctx context.Context, dir, table string) (int, error) {
	uploader := s3manager.NewUploaderWithClient(s.Client)
	root := filepath.Join(dir, table)
	uploaded := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.key(filepath.ToSlash(rel))),
			Body:   f,
		})
		if err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, errors.Wrap(err, errors.ErrCodeStorageWrite, "Failed to upload "+table).
			WithContext("bucket", s.Bucket)
	}
	return uploaded, nil
}
