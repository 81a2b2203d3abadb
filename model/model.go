// Package model defines the generative model the worker drives and ships a
// procedural reference implementation.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/sopimagenta/ganworker/latent"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

// Model maps latent codes and pitches to audio.
//
// Implementations are called from a single goroutine and may block for as
// long as synthesis takes.
type Model interface {
	// Info describes the audio the model produces.
	Info() types.AudioInfo

	// GenerateZ samples n codes from the model's prior.
	GenerateZ(ctx context.Context, n int) ([]types.Z, error)

	// GenerateFromZ synthesizes one note per (code, pitch) pair, in order.
	// offsets may be nil. A pitch the model was not trained on fails the
	// whole call with a *PitchError.
	GenerateFromZ(ctx context.Context, zs []types.Z, pitches []int32, offsets latent.Offsets) ([]types.Audio, error)

	// GenerateFromEdits synthesizes one note per pitch from the archive's mean
	// code moved along its directions by the matching edit row.
	GenerateFromEdits(ctx context.Context, pitches []int32, edits [][]float64, archive *pca.Latent) ([]types.Audio, error)
}

// PitchError reports a pitch the model was not trained on.
type PitchError struct {
	Pitch int32
}

func (e *PitchError) Error() string {
	return fmt.Sprintf("model was not trained on pitch %d", e.Pitch)
}

// AsPitchError extracts a *PitchError from err's chain.
func AsPitchError(err error) (*PitchError, bool) {
	var pe *PitchError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrBatchMismatch indicates codes and pitches of different lengths.
var ErrBatchMismatch = errors.New("codes and pitches differ in length")
