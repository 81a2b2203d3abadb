package pca

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sopimagenta/ganworker/awsx"
)

// S3Scheme prefixes archive paths fetched from object storage.
const S3Scheme = "s3://"

// S3Config configures the client used for s3:// archive paths.
type S3Config = awsx.S3Config

// GetObjectAPI is the subset of the S3 client the loader needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads archives from local files or s3:// URLs.
type Loader struct {
	s3cfg S3Config

	once      sync.Once
	client    GetObjectAPI
	clientErr error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithS3Client sets the client used for s3:// paths instead of building one
// from the default AWS configuration chain.
func WithS3Client(c GetObjectAPI) LoaderOption {
	return func(l *Loader) {
		l.client = c
		l.once.Do(func() {})
	}
}

// NewLoader creates a Loader. The S3 client is only built on first use of an
// s3:// path.
func NewLoader(s3cfg S3Config, opts ...LoaderOption) *Loader {
	l := &Loader{s3cfg: s3cfg}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load opens path and decodes the archive it holds.
func (l *Loader) Load(ctx context.Context, path string) (Archive, error) {
	if path == "" {
		return nil, errors.New("empty archive path")
	}

	rc, err := l.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	a, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	return a, nil
}

func (l *Loader) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, S3Scheme) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		return f, nil
	}

	bucket, key, err := ParseS3URL(path)
	if err != nil {
		return nil, err
	}
	client, err := l.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", path, err)
	}
	return out.Body, nil
}

func (l *Loader) s3Client(ctx context.Context) (GetObjectAPI, error) {
	l.once.Do(func() {
		l.client, l.clientErr = awsx.NewS3Client(ctx, l.s3cfg)
	})
	return l.client, l.clientErr
}

// ParseS3URL splits "s3://bucket/key" into bucket and key.
func ParseS3URL(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, S3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", path)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q needs a bucket and a key", path)
	}
	return bucket, key, nil
}
