package worker

import (
	"context"
	"fmt"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/model"
	"github.com/sopimagenta/ganworker/types"
)

// synthFunc synthesizes the batch items at the given indices, in order.
type synthFunc func(ctx context.Context, idx []int) ([]types.Audio, error)

// synthesize runs a decoded batch through the model and writes the reply.
//
// By default a pitch the model was not trained on fails the whole batch and
// the reply carries no audio. With PartialResults, failing items are isolated
// by retrying each item alone and the reply carries one status per item.
func (w *Worker) synthesize(ctx context.Context, pitches []int32, call synthFunc) error {
	n := len(pitches)
	if n == 0 {
		if w.cfg.PartialResults {
			return w.sendStatus(nil)
		}
		return w.sendAudio(nil)
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	audios, err := runSynth(ctx, call, all)
	if err == nil {
		if w.cfg.PartialResults {
			items := make([]types.AudioItem, n)
			for i, a := range audios {
				items[i] = types.AudioItem{Status: types.ItemOK, Audio: a}
			}
			return w.sendStatus(items)
		}
		return w.sendAudio(audios)
	}

	if !w.cfg.PartialResults {
		if pe, ok := model.AsPitchError(err); ok {
			w.collector.IncPitchFailure()
			w.logger.Warn("can't synthesize", map[string]any{
				"error": pe.Error(),
				"pitch": pe.Pitch,
				"items": n,
			})
			return w.sendAudio(nil)
		}
		w.collector.IncModelFailure()
		w.logger.Error("synthesis failed", map[string]any{"error": err.Error(), "items": n})
		return w.reject(ipc.ErrCodeModelFailure, err.Error())
	}

	w.logger.Warn("batch synthesis failed, isolating items", map[string]any{
		"error": err.Error(),
		"items": n,
	})
	items := make([]types.AudioItem, n)
	for i := range items {
		one, err := runSynth(ctx, call, []int{i})
		switch {
		case err == nil:
			items[i] = types.AudioItem{Status: types.ItemOK, Audio: one[0]}
		case isPitchError(err):
			w.collector.IncPitchFailure()
			items[i] = types.AudioItem{Status: types.ItemPitchUnsupported}
		default:
			w.collector.IncModelFailure()
			w.logger.Error("item synthesis failed", map[string]any{
				"error": err.Error(),
				"item":  i,
				"pitch": pitches[i],
			})
			items[i] = types.AudioItem{Status: types.ItemFailed}
		}
	}
	return w.sendStatus(items)
}

// runSynth calls the model and checks it returned one note per item.
func runSynth(ctx context.Context, call synthFunc, idx []int) ([]types.Audio, error) {
	audios, err := call(ctx, idx)
	if err != nil {
		return nil, err
	}
	if len(audios) != len(idx) {
		return nil, fmt.Errorf("model returned %d notes for %d items", len(audios), len(idx))
	}
	return audios, nil
}

func isPitchError(err error) bool {
	_, ok := model.AsPitchError(err)
	return ok
}

// sendEmptyAudio answers a synthesis request that cannot run against the
// loaded archive: no audio, or one failed status per item.
func (w *Worker) sendEmptyAudio(n int) error {
	if !w.cfg.PartialResults {
		return w.sendAudio(nil)
	}
	items := make([]types.AudioItem, n)
	for i := range items {
		items[i] = types.AudioItem{Status: types.ItemFailed}
	}
	return w.sendStatus(items)
}

func (w *Worker) sendAudio(audios []types.Audio) error {
	if err := w.send(&ipc.AudioResult{Audios: audios}); err != nil {
		return err
	}
	bytes := 0
	for _, a := range audios {
		bytes += a.ByteSize()
	}
	w.collector.AddAudioSent(len(audios), bytes)
	return nil
}

func (w *Worker) sendStatus(items []types.AudioItem) error {
	if err := w.send(&ipc.AudioStatusResult{Items: items}); err != nil {
		return err
	}
	sent, bytes := 0, 0
	for _, item := range items {
		if item.Status == types.ItemOK {
			sent++
			bytes += item.Audio.ByteSize()
		}
	}
	w.collector.AddAudioSent(sent, bytes)
	return nil
}
