package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sopimagenta/ganworker/pca"
)

var (
	// ErrNoComponents is returned by operations that need a loaded archive.
	ErrNoComponents = errors.New("no pca components loaded")

	// ErrAmplitudeLength is returned when an amplitude vector does not match
	// the loaded archive's component count.
	ErrAmplitudeLength = errors.New("amplitude count does not match component count")
)

// ArchiveLoader loads a PCA archive from a path.
type ArchiveLoader interface {
	Load(ctx context.Context, path string) (pca.Archive, error)
}

// Session is the state carried across requests: the loaded archive and the
// amplitude vector set against it. It is owned by a single dispatch loop and
// is not safe for concurrent use.
type Session struct {
	loader     ArchiveLoader
	archive    pca.Archive
	amplitudes []float64
}

// NewSession creates an empty session.
func NewSession(loader ArchiveLoader) *Session {
	return &Session{loader: loader}
}

// LoadComponents replaces the loaded archive with the one at path and clears
// the amplitude vector. On failure the session is left unchanged.
func (s *Session) LoadComponents(ctx context.Context, path string) (int, error) {
	a, err := s.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	s.archive = a
	s.amplitudes = nil
	return a.ComponentCount(), nil
}

// SetAmplitudes replaces the amplitude vector. Its length must equal the
// loaded archive's component count.
func (s *Session) SetAmplitudes(amplitudes []float64) error {
	if s.archive == nil {
		return ErrNoComponents
	}
	if len(amplitudes) != s.archive.ComponentCount() {
		return fmt.Errorf("%w: got %d, want %d", ErrAmplitudeLength, len(amplitudes), s.archive.ComponentCount())
	}
	s.amplitudes = slices.Clone(amplitudes)
	return nil
}

// Archive returns the loaded archive, or nil.
func (s *Session) Archive() pca.Archive {
	return s.archive
}

// ComponentCount returns the loaded archive's component count. ok is false
// when nothing is loaded.
func (s *Session) ComponentCount() (n int, ok bool) {
	if s.archive == nil {
		return 0, false
	}
	return s.archive.ComponentCount(), true
}

// Amplitudes returns the current amplitude vector, or nil when none is set.
func (s *Session) Amplitudes() []float64 {
	return s.amplitudes
}
