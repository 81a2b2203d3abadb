package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/reader"
	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/lode"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// NotesCommand returns the notes command.
// Notes lists the captured note records of one render session.
func NotesCommand() *cli.Command {
	flags := append([]cli.Flag{ConfigFlag}, ReadOnlyFlags()...)
	flags = append(flags, storageFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "status",
			Usage: "Only list notes with this status (ok, pitch_unsupported, failed)",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of notes to list (0 = all)",
		},
	)
	return &cli.Command{
		Name:      "notes",
		Usage:     "List the notes captured by a render session",
		ArgsUsage: "<session>",
		Flags:     flags,
		Action:    notesAction,
	}
}

func notesAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("session required", exitUsage)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for notes command", exitUsage)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must not be negative", exitUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rd, err := newNotesReader(c)
	if err != nil {
		return err
	}

	items, err := listNotes(c.Context, rd, c.Args().First(), c.String("status"), c.Int("limit"))
	if err != nil {
		return err
	}
	if c.Int("limit") == 0 && len(items) > listWarningThreshold && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d notes listed; use --limit to narrow the output\n", len(items))
	}
	return r.Render(items)
}

// newNotesReader builds a reader over the configured capture dataset.
func newNotesReader(c *cli.Context) (reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	storage := resolveStorage(c, cfg)
	if err := validateStorageConfig(storage); err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	ds, err := buildReadDataset(c.Context, storage)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), exitUsage)
	}
	return reader.NewLodeReader(nil, ds), nil
}

// listNotes reads a session's notes, keeping those matching status (if set)
// up to limit (if positive).
func listNotes(ctx context.Context, rd reader.Reader, session, status string, limit int) ([]reader.NoteItem, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	items, err := rd.ListNotes(ctx, session)
	if err != nil {
		if errors.Is(err, lode.ErrNoNotesFound) {
			return nil, cli.Exit(fmt.Sprintf("no notes captured for session %q", session), exitUsage)
		}
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}

	out := make([]reader.NoteItem, 0, len(items))
	for _, item := range items {
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
