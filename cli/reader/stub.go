package reader

import (
	"context"
	"fmt"
)

// StubReader returns fixed data for testing.
type StubReader struct {
	Archives map[string]*ArchiveSummary
	Notes    map[string][]NoteItem
}

// NewStubReader creates an empty stub reader.
func NewStubReader() *StubReader {
	return &StubReader{
		Archives: make(map[string]*ArchiveSummary),
		Notes:    make(map[string][]NoteItem),
	}
}

// InspectArchive implements Reader.
func (s *StubReader) InspectArchive(_ context.Context, path string) (*ArchiveSummary, error) {
	a, ok := s.Archives[path]
	if !ok {
		return nil, fmt.Errorf("archive not found: %s", path)
	}
	return a, nil
}

// ListNotes implements Reader.
func (s *StubReader) ListNotes(_ context.Context, session string) ([]NoteItem, error) {
	notes, ok := s.Notes[session]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", session)
	}
	return notes, nil
}

// StatsNotes implements Reader.
func (s *StubReader) StatsNotes(ctx context.Context, session string) (*NoteStats, error) {
	notes, err := s.ListNotes(ctx, session)
	if err != nil {
		return nil, err
	}
	return SummarizeNotes(session, "stub", notes), nil
}

var _ Reader = (*StubReader)(nil)
