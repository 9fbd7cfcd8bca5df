// Package datasource resolves a dump location to a byte stream. Locations are
// local paths, http(s):// URLs or s3://bucket/key URIs; .gz and .sz/.snappy
// suffixes are decompressed transparently.
package datasource

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"

	"docfill/internal/datasource/file"
	"docfill/internal/datasource/httpds"
	"docfill/internal/datasource/s3"
)

// Source opens a stream of raw bytes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options configures remote backends.
type Options struct {
	HTTP httpds.Config
	S3   s3.Config

	// S3Client overrides the client built from S3; used by tests.
	S3Client s3.GetObjectAPI
}

// Resolve picks the backend for location without opening it.
func Resolve(ctx context.Context, location string, opts Options) (Source, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		client := opts.S3Client
		if client == nil {
			c, err := s3.NewClient(ctx, opts.S3)
			if err != nil {
				return nil, err
			}
			client = c
		}
		return s3.New(client, location)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return httpds.New(location, opts.HTTP), nil
	case location == "":
		return nil, fmt.Errorf("datasource: empty location")
	default:
		return file.NewLocal(strings.TrimPrefix(location, "file://")), nil
	}
}

// Open resolves location, opens it and wraps it in a decompressor chosen by
// the location's suffix.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	src, err := Resolve(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	return Decompress(rc, location)
}

// Decompress wraps rc according to name's suffix. Closing the result closes rc.
func Decompress(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("datasource: gzip %s: %w", name, err)
		}
		return &stacked{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	case strings.HasSuffix(lower, ".sz"), strings.HasSuffix(lower, ".snappy"):
		return &stacked{Reader: snappy.NewReader(rc), closers: []io.Closer{rc}}, nil
	default:
		return rc, nil
	}
}

// stacked closes every layer, innermost last, and reports the first error.
type stacked struct {
	io.Reader
	closers []io.Closer
}

func (s *stacked) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
