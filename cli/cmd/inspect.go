package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/config"
	"github.com/sopimagenta/ganworker/cli/reader"
	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/pca"
)

// readTimeout bounds read-only storage access.
const readTimeout = 30 * time.Second

// InspectPCACommand returns the inspect-pca command.
// It summarizes a PCA archive without starting a worker.
func InspectPCACommand() *cli.Command {
	flags := append([]cli.Flag{ConfigFlag}, TUIReadOnlyFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "AWS region for s3:// archives (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Custom S3 endpoint for s3:// archives",
		},
	)
	return &cli.Command{
		Name:      "inspect-pca",
		Usage:     "Summarize a PCA archive (local path or s3://bucket/key)",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action:    inspectPCAAction,
	}
}

func inspectPCAAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("archive path required", exitUsage)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ac := configVal(cfg, func(c *config.Config) config.ArchiveConfig { return c.Archive })
	loader := pca.NewLoader(pca.S3Config{
		Region:       resolveString(c, "archive-region", ac.Region),
		Endpoint:     resolveString(c, "archive-endpoint", ac.Endpoint),
		UsePathStyle: ac.S3PathStyle,
	})

	summary, err := inspectArchive(c.Context, reader.NewLodeReader(loader, nil), c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_pca", summary)
	}
	return r.Render(summary)
}

func inspectArchive(ctx context.Context, rd reader.Reader, path string) (*reader.ArchiveSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	return rd.InspectArchive(ctx, path)
}
