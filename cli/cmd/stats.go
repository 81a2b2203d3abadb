package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/reader"
	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/lode"
)

// StatsCommand returns the stats command.
// Stats returns aggregated, derived facts about one render session.
func StatsCommand() *cli.Command {
	flags := append([]cli.Flag{ConfigFlag}, TUIReadOnlyFlags()...)
	flags = append(flags, storageFlags()...)
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show note statistics for a render session",
		ArgsUsage: "<session>",
		Flags:     flags,
		Action:    statsAction,
	}
}

func statsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("session required", exitUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rd, err := newNotesReader(c)
	if err != nil {
		return err
	}

	stats, err := sessionStats(c.Context, rd, c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_notes", stats)
	}
	return r.Render(stats)
}

func sessionStats(ctx context.Context, rd reader.Reader, session string) (*reader.NoteStats, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	stats, err := rd.StatsNotes(ctx, session)
	if err != nil {
		if errors.Is(err, lode.ErrNoNotesFound) {
			return nil, cli.Exit(fmt.Sprintf("no notes captured for session %q", session), exitUsage)
		}
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	return stats, nil
}
