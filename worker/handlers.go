package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/latent"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

func (w *Worker) sendZ(zs []types.Z) error {
	if err := w.send(&ipc.ZResult{Zs: zs}); err != nil {
		return err
	}
	w.collector.AddCodesSent(len(zs))
	return nil
}

func (w *Worker) handleRandZ(ctx context.Context) error {
	req, err := ipc.DecodeRandZ(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}

	zs, err := w.model.GenerateZ(ctx, req.Count)
	if err == nil && len(zs) != req.Count {
		err = fmt.Errorf("model returned %d codes for %d requested", len(zs), req.Count)
	}
	if err != nil {
		w.collector.IncModelFailure()
		w.logger.Error("sampling failed", map[string]any{"error": err.Error()})
		return w.reject(ipc.ErrCodeModelFailure, err.Error())
	}
	return w.sendZ(zs)
}

func (w *Worker) handleSlerpZ(context.Context) error {
	req, err := ipc.DecodeSlerpZ(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}
	return w.sendZ([]types.Z{latent.Slerp(req.Z0, req.Z1, req.Amount)})
}

func (w *Worker) handleGenAudio(ctx context.Context) error {
	req, err := ipc.DecodeGenAudio(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}

	zs := make([]types.Z, len(req.Items))
	pitches := make([]int32, len(req.Items))
	for i, item := range req.Items {
		zs[i] = item.Z
		pitches[i] = item.Pitch
	}

	var offsets latent.Offsets
	if amps := w.session.Amplitudes(); amps != nil {
		offsets = latent.LayerOffsets(w.session.Archive(), amps, w.cfg.BatchSize)
	}

	return w.synthesize(ctx, pitches, func(ctx context.Context, idx []int) ([]types.Audio, error) {
		return w.model.GenerateFromZ(ctx, pick(zs, idx), pick(pitches, idx), offsets)
	})
}

func (w *Worker) handleLoadComponents(ctx context.Context) error {
	req, err := ipc.DecodeLoadComponents(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}

	w.logger.Info("opening components file", map[string]any{"path": req.Path})
	n, err := w.session.LoadComponents(ctx, req.Path)
	if err != nil {
		w.collector.IncComponentLoadFailure()
		return w.reject(ipc.ErrCodeLoadFailed, err.Error())
	}
	w.collector.IncComponentLoad()
	w.logger.Info("components file loaded", map[string]any{
		"path":       req.Path,
		"components": n,
		"version":    w.session.Archive().Version(),
	})
	return w.send(&ipc.LoadComponentsResult{Count: n})
}

// handleSetAmplitudes reads exactly one value per loaded component. With no
// archive loaded the payload length is unknown and the stream cannot be
// followed any further.
func (w *Worker) handleSetAmplitudes(context.Context) error {
	n, ok := w.session.ComponentCount()
	if !ok {
		w.collector.IncContractViolation()
		return &Fault{Kind: FaultContract, Err: ErrNoComponents}
	}
	req, err := ipc.DecodeSetAmplitudes(w.dec, n)
	if err != nil {
		return w.decodeFailed(err)
	}
	if err := w.session.SetAmplitudes(req.Amplitudes); err != nil {
		return &Fault{Kind: FaultContract, Err: err}
	}
	w.logger.Debug("amplitudes set", map[string]any{"components": n})
	return nil
}

func (w *Worker) handleSynthesizeNoZ(ctx context.Context) error {
	req, err := ipc.DecodeSynthesizeNoZ(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}

	pitches := make([]int32, len(req.Items))
	rows := make([][]float64, len(req.Items))
	for i, item := range req.Items {
		pitches[i] = item.Pitch
		rows[i] = item.Edits
	}

	archive, err := w.latentArchive()
	if err != nil {
		if errors.Is(err, ErrNoComponents) {
			return w.reject(ipc.ErrCodeNoComponents, "synthesize_noz: "+err.Error())
		}
		return w.sendEmptyAudio(len(pitches))
	}

	edits := latent.PadEdits(rows)
	return w.synthesize(ctx, pitches, func(ctx context.Context, idx []int) ([]types.Audio, error) {
		return w.model.GenerateFromEdits(ctx, pick(pitches, idx), pick(edits, idx), archive)
	})
}

func (w *Worker) handleGetZMean(context.Context) error {
	archive, err := w.latentArchive()
	if err != nil {
		if errors.Is(err, ErrNoComponents) {
			return w.reject(ipc.ErrCodeNoComponents, "get_z_mean: "+err.Error())
		}
		return w.sendZ(nil)
	}
	return w.sendZ([]types.Z{archive.ZMean})
}

func (w *Worker) handleEditZ(context.Context) error {
	req, err := ipc.DecodeEditZ(w.dec)
	if err != nil {
		return w.decodeFailed(err)
	}

	archive, err := w.latentArchive()
	if err != nil {
		if errors.Is(err, ErrNoComponents) {
			return w.reject(ipc.ErrCodeNoComponents, "edit_z: "+err.Error())
		}
		return w.sendZ(nil)
	}
	return w.sendZ([]types.Z{latent.EditZ(archive, req.Z, req.Edits)})
}

// latentArchive returns the loaded archive if it has latent components.
// An archive of the wrong version is logged and counted here.
func (w *Worker) latentArchive() (*pca.Latent, error) {
	a := w.session.Archive()
	if a == nil {
		return nil, ErrNoComponents
	}
	l, err := pca.AsLatent(a)
	if err != nil {
		w.collector.IncUnsupportedVersion()
		w.logger.Warn("can't use components", map[string]any{"error": err.Error()})
		return nil, err
	}
	return l, nil
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}
