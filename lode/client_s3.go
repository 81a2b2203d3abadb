package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/sopimagenta/ganworker/awsx"
)

// S3Config holds configuration for S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if strings.Contains(c.Bucket, "://") {
		return fmt.Errorf("S3 bucket %q must not include a scheme", c.Bucket)
	}
	return nil
}

func (c *S3Config) endpoint() awsx.S3Config {
	return awsx.S3Config{Region: c.Region, Endpoint: c.Endpoint, UsePathStyle: c.UsePathStyle}
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket". A leading
// "s3://" and trailing slashes are accepted.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, "s3://")
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, strings.Trim(prefix, "/")
}

// NewLodeS3Client creates a new Lode client with S3 storage backend.
// Uses AWS SDK default credential chain (env vars, shared config, IAM role).
func NewLodeS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := s3StoreFactory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to create Lode dataset: %w", err), cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

// s3StoreFactory builds a Lode store factory backed by an S3 client.
func s3StoreFactory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := awsx.NewS3Client(ctx, s3cfg.endpoint())
	if err != nil {
		return nil, WrapInitError(err, s3cfg.Bucket)
	}
	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}
