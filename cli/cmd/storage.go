package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	lodeapi "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/config"
	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/metrics"
)

// storageChoice holds resolved capture storage configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs", "s3", "memory" or "" (no capture)
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStorage merges storage flags over the config file.
func resolveStorage(c *cli.Context, cfg *config.Config) storageChoice {
	sc := configVal(cfg, func(c *config.Config) config.StorageConfig { return c.Storage })
	return storageChoice{
		dataset:   resolveString(c, "storage-dataset", sc.Dataset),
		backend:   resolveString(c, "storage-backend", sc.Backend),
		path:      resolveString(c, "storage-path", sc.Path),
		region:    resolveString(c, "storage-region", sc.Region),
		endpoint:  resolveString(c, "storage-endpoint", sc.Endpoint),
		pathStyle: resolveBool(c, "storage-s3-path-style", sc.S3PathStyle),
	}
}

// enabled reports whether a capture backend was selected.
func (s storageChoice) enabled() bool {
	return s.backend != ""
}

// validateStorageConfig checks a storage choice before anything is built.
// An empty backend means capture is disabled.
func validateStorageConfig(s storageChoice) error {
	switch s.backend {
	case "":
		if s.path != "" {
			return errors.New("--storage-path given without --storage-backend (use fs or s3)")
		}
		return nil
	case "memory":
		return nil
	case "fs", "s3":
		if s.path == "" {
			return fmt.Errorf("--storage-path is required for the %s backend", s.backend)
		}
		return nil
	default:
		return fmt.Errorf("invalid --storage-backend %q (must be fs, s3 or memory)", s.backend)
	}
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// buildCapture creates the capture client for a render session, wrapped so
// that every write is counted in collector.
func buildCapture(ctx context.Context, s storageChoice, cfg lode.Config, collector *metrics.Collector) (lode.Client, error) {
	var (
		client *lode.LodeClient
		err    error
	)
	switch s.backend {
	case "fs":
		client, err = lode.NewLodeClient(cfg, s.path)
	case "s3":
		client, err = lode.NewLodeS3Client(ctx, cfg, s.s3Config())
	case "memory":
		client, err = lode.NewLodeClientWithFactory(cfg, lodeapi.NewMemoryFactory())
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", s.backend)
	}
	if err != nil {
		return nil, err
	}
	return lode.NewInstrumentedClient(client, collector), nil
}

// buildReadDataset creates a Lode Dataset for the read-only commands.
func buildReadDataset(ctx context.Context, s storageChoice) (lodeapi.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	case "":
		return nil, errors.New("--storage-backend and --storage-path are required to read captured notes")
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", s.backend)
	}
}

// buildStoragePath returns the location of a session's partition for
// reports and completion events.
func buildStoragePath(s storageChoice, session, day string) string {
	partition := fmt.Sprintf("datasets/%s/partitions/session=%s/day=%s", s.dataset, session, day)
	switch s.backend {
	case "fs":
		root, err := filepath.Abs(s.path)
		if err != nil {
			root = s.path
		}
		return "file://" + filepath.ToSlash(filepath.Join(root, partition))
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.path)
		if prefix == "" {
			return fmt.Sprintf("s3://%s/%s", bucket, partition)
		}
		return fmt.Sprintf("s3://%s/%s/%s", bucket, prefix, partition)
	default:
		return partition
	}
}
