package common

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"starflow/pkg/errors"
)

// URI schemes
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
	SchemeGCS  = "gs"
)

// Location is a parsed storage URI. Local paths have Scheme "file" and
// only Path set.
type Location struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Path
	}
	if l.Key == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseURI splits s3://bucket/key and gs://bucket/key URIs. Anything
// without a scheme is a local path.
func ParseURI(uri string) (Location, error) {
	uri = strings.TrimSpace(strings.Trim(uri, `'"`))
	if uri == "" {
		return Location{}, errors.New(errors.ErrCodeInvalidURI, "Empty storage location")
	}

	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		p, err := CleanPath(uri)
		if err != nil {
			return Location{}, err
		}
		return Location{Scheme: SchemeFile, Path: p}, nil
	}

	switch scheme {
	case SchemeS3, "s3a", "s3n":
		scheme = SchemeS3
	case SchemeGCS:
	case SchemeFile:
		p, err := CleanPath(rest)
		if err != nil {
			return Location{}, err
		}
		return Location{Scheme: SchemeFile, Path: p}, nil
	default:
		return Location{}, errors.New(errors.ErrCodeInvalidURI, fmt.Sprintf("Unsupported scheme '%s' in %s", scheme, uri))
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, errors.New(errors.ErrCodeInvalidURI, "Missing bucket in "+uri)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: strings.Trim(key, "/")}, nil
}

// CleanPath makes path absolute and rejects directory traversal.
func CleanPath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if slices.Contains(strings.Split(filepath.ToSlash(cleaned), "/"), "..") {
		return "", errors.New(errors.ErrCodeInvalidURI, "Invalid path: contains directory traversal").
			WithContext("path", path)
	}

	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to resolve absolute path")
		}
		cleaned = abs
	}
	return cleaned, nil
}
