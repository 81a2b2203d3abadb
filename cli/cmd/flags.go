// Package cmd provides CLI commands for the ganhost binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/lode"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect-pca, probe and stats.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect-pca, probe, stats only)",
	}

	// ConfigFlag points at a ganworker.yaml file. CLI flags override it.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to ganworker.yaml (CLI flags override config values)",
		EnvVars: []string{"GANWORKER_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// workerFlags select and launch the worker process.
func workerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "worker-cmd",
			Usage: "Worker command line without positional arguments (default: ganworker)",
		},
		&cli.StringFlag{
			Name:  "checkpoint",
			Usage: "Model checkpoint directory passed to the worker",
		},
		&cli.IntFlag{
			Name:  "batch",
			Usage: "Worker batch size",
		},
		&cli.Float64Flag{
			Name:  "memfrac",
			Usage: "GPU memory fraction passed to the worker (0 = worker default)",
		},
		&cli.DurationFlag{
			Name:  "startup-timeout",
			Usage: "Maximum wait for the worker handshake",
		},
	}
}

// storageFlags select the capture dataset.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID",
			Value: lode.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs, s3 or memory",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// adapterFlags configure render completion notifications.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or redis:// URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringFlag{
			Name:  "adapter-encoding",
			Usage: "Redis payload encoding: json or msgpack",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Retry attempts on publish failure",
			Value: 3,
		},
		&cli.Int64Flag{
			Name:  "adapter-history",
			Usage: "Keep the last N events in a redis list (0 disables)",
		},
	}
}
