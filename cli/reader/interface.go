package reader

import (
	"context"
	"fmt"

	lodeapi "github.com/justapithecus/lode/lode"

	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/pca"
)

// Reader abstracts read-only data access for CLI commands.
type Reader interface {
	// InspectArchive loads and summarizes a PCA archive (local or s3://).
	InspectArchive(ctx context.Context, path string) (*ArchiveSummary, error)
	// ListNotes returns the captured notes of a session, ordered by seq.
	ListNotes(ctx context.Context, session string) ([]NoteItem, error)
	// StatsNotes aggregates the captured notes of a session.
	StatsNotes(ctx context.Context, session string) (*NoteStats, error)
}

// ArchiveLoader loads PCA archives.
type ArchiveLoader interface {
	Load(ctx context.Context, path string) (pca.Archive, error)
}

// LodeReader reads archives through a loader and notes from a capture
// dataset. Either may be nil if the commands that need it are not used.
type LodeReader struct {
	archives ArchiveLoader
	dataset  lodeapi.Dataset
}

// NewLodeReader creates a reader.
func NewLodeReader(archives ArchiveLoader, dataset lodeapi.Dataset) *LodeReader {
	return &LodeReader{archives: archives, dataset: dataset}
}

// InspectArchive implements Reader.
func (r *LodeReader) InspectArchive(ctx context.Context, path string) (*ArchiveSummary, error) {
	if r.archives == nil {
		return nil, fmt.Errorf("no archive loader configured")
	}
	a, err := r.archives.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return SummarizeArchive(path, a), nil
}

// ListNotes implements Reader.
func (r *LodeReader) ListNotes(ctx context.Context, session string) ([]NoteItem, error) {
	items, _, err := r.notes(ctx, session)
	return items, err
}

// StatsNotes implements Reader.
func (r *LodeReader) StatsNotes(ctx context.Context, session string) (*NoteStats, error) {
	items, checkpoint, err := r.notes(ctx, session)
	if err != nil {
		return nil, err
	}
	return SummarizeNotes(session, checkpoint, items), nil
}

func (r *LodeReader) notes(ctx context.Context, session string) ([]NoteItem, string, error) {
	if r.dataset == nil {
		return nil, "", fmt.Errorf("no capture storage configured")
	}
	records, err := lode.QueryNotes(ctx, r.dataset, session)
	if err != nil {
		return nil, "", err
	}

	var checkpoint string
	items := make([]NoteItem, 0, len(records))
	for _, rec := range records {
		item, err := ParseNoteRecord(rec)
		if err != nil {
			return nil, "", fmt.Errorf("note record: %w", err)
		}
		if checkpoint == "" {
			checkpoint = toString(rec["checkpoint"])
		}
		items = append(items, *item)
	}
	return items, checkpoint, nil
}

var _ Reader = (*LodeReader)(nil)
