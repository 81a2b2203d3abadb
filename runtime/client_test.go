package runtime

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/transport"
	"github.com/sopimagenta/ganworker/types"
)

func TestHandshake_ReportsInfo(t *testing.T) {
	client, _, _ := startInProcess(t, false)

	info := client.Info()
	if info.AudioLength != 64 || info.SampleRate != 16000 {
		t.Errorf("Info() = %+v, want {64 16000}", info)
	}
	if _, ok := client.ComponentCount(); ok {
		t.Error("ComponentCount() ok = true before any load")
	}
}

func TestHandshake_WrongFirstTag(t *testing.T) {
	hostEnd, workerEnd := transport.Pipe()
	defer workerEnd.Close()
	go func() {
		_ = ipc.NewEncoder(workerEnd).Send(&ipc.ZResult{})
	}()

	_, err := Handshake(hostEnd, testLimits(), nil)
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if !ipc.IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestClient_RandZAndSlerp(t *testing.T) {
	client, collector, _ := startInProcess(t, false)
	ctx := context.Background()

	zs, err := client.RandZ(ctx, 3)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	if len(zs) != 3 {
		t.Fatalf("RandZ returned %d codes, want 3", len(zs))
	}

	start, err := client.SlerpZ(ctx, zs[0], zs[1], 0)
	if err != nil {
		t.Fatalf("SlerpZ: %v", err)
	}
	for i := range start {
		if math.Abs(start[i]-zs[0][i]) > 1e-9 {
			t.Fatalf("SlerpZ(amount=0)[%d] = %v, want %v", i, start[i], zs[0][i])
		}
	}

	snap := collector.Snapshot()
	if snap.RequestsByTag["rand_z"] != 1 || snap.RequestsByTag["slerp_z"] != 1 {
		t.Errorf("RequestsByTag = %v", snap.RequestsByTag)
	}
}

func TestClient_RandZZero(t *testing.T) {
	client, _, _ := startInProcess(t, false)

	zs, err := client.RandZ(context.Background(), 0)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	if len(zs) != 0 {
		t.Errorf("RandZ(0) returned %d codes", len(zs))
	}
}

func TestClient_GenAudio(t *testing.T) {
	client, _, _ := startInProcess(t, false)
	ctx := context.Background()

	zs, err := client.RandZ(ctx, 2)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	items, err := client.GenAudio(ctx, []ipc.GenAudioItem{
		{Pitch: 60, Z: zs[0]},
		{Pitch: 48, Z: zs[1]},
	})
	if err != nil {
		t.Fatalf("GenAudio: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GenAudio returned %d items, want 2", len(items))
	}
	for i, it := range items {
		if it.Status != types.ItemOK {
			t.Errorf("item %d status = %v, want ok", i, it.Status)
		}
		if len(it.Audio.Samples) != 64 {
			t.Errorf("item %d has %d samples, want 64", i, len(it.Audio.Samples))
		}
	}
}

func TestClient_GenAudioUntrainedPitch(t *testing.T) {
	client, _, _ := startInProcess(t, false)
	ctx := context.Background()

	zs, err := client.RandZ(ctx, 1)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	_, err = client.GenAudio(ctx, []ipc.GenAudioItem{
		{Pitch: 60, Z: zs[0]},
		{Pitch: 120, Z: zs[0]},
	})
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", err)
	}

	// The stream is still aligned.
	if _, err := client.RandZ(ctx, 1); err != nil {
		t.Errorf("RandZ after failed batch: %v", err)
	}
}

func TestClient_GenAudioPartialResults(t *testing.T) {
	client, _, _ := startInProcess(t, true)
	ctx := context.Background()

	zs, err := client.RandZ(ctx, 1)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	items, err := client.GenAudio(ctx, []ipc.GenAudioItem{
		{Pitch: 60, Z: zs[0]},
		{Pitch: 120, Z: zs[0]},
		{Pitch: 72, Z: zs[0]},
	})
	if err != nil {
		t.Fatalf("GenAudio: %v", err)
	}
	want := []types.ItemStatus{types.ItemOK, types.ItemPitchUnsupported, types.ItemOK}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if it.Status != want[i] {
			t.Errorf("item %d status = %v, want %v", i, it.Status, want[i])
		}
	}
	if len(items[1].Audio.Samples) != 0 {
		t.Errorf("unsupported item carries %d samples", len(items[1].Audio.Samples))
	}
}

func TestClient_GenAudioEmptyBatch(t *testing.T) {
	client, _, _ := startInProcess(t, false)

	items, err := client.GenAudio(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenAudio(nil): %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestClient_LoadComponentsFailure(t *testing.T) {
	client, collector, _ := startInProcess(t, false)
	ctx := context.Background()

	_, err := client.LoadComponents(ctx, "/nonexistent/components.msgpack")
	var reply *ipc.ErrorReply
	if !errors.As(err, &reply) {
		t.Fatalf("expected *ipc.ErrorReply, got %v", err)
	}
	if reply.Code != ipc.ErrCodeLoadFailed {
		t.Errorf("Code = %v, want %v", reply.Code, ipc.ErrCodeLoadFailed)
	}
	if _, ok := client.ComponentCount(); ok {
		t.Error("ComponentCount() ok = true after failed load")
	}
	if got := collector.Snapshot().ComponentLoadFailure; got != 1 {
		t.Errorf("ComponentLoadFailures = %d, want 1", got)
	}

	// An error reply is not a framing error.
	if _, err := client.RandZ(ctx, 1); err != nil {
		t.Errorf("RandZ after error reply: %v", err)
	}
}

func TestClient_NoArchiveErrors(t *testing.T) {
	client, _, _ := startInProcess(t, false)
	ctx := context.Background()

	if err := client.SetAmplitudes(ctx, []float64{1}); !errors.Is(err, ErrNoComponents) {
		t.Errorf("SetAmplitudes before load: expected ErrNoComponents, got %v", err)
	}

	_, _, err := client.GetZMean(ctx)
	var reply *ipc.ErrorReply
	if !errors.As(err, &reply) || reply.Code != ipc.ErrCodeNoComponents {
		t.Errorf("GetZMean without archive: expected no_components reply, got %v", err)
	}

	if _, err := client.RandZ(ctx, 1); err != nil {
		t.Errorf("RandZ after no_components reply: %v", err)
	}
}

func TestClient_LegacyArchive(t *testing.T) {
	client, collector, _ := startInProcess(t, false)
	ctx := context.Background()
	path := writeArchive(t, 3, false)

	count, err := client.LoadComponents(ctx, path)
	if err != nil {
		t.Fatalf("LoadComponents: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if got, ok := client.ComponentCount(); !ok || got != 3 {
		t.Errorf("ComponentCount() = %d, %v; want 3, true", got, ok)
	}
	if got := collector.Snapshot().ComponentLoads; got != 1 {
		t.Errorf("ComponentLoads = %d, want 1", got)
	}

	if err := client.SetAmplitudes(ctx, []float64{1, 0}); !errors.Is(err, ErrAmplitudeLength) {
		t.Errorf("short amplitudes: expected ErrAmplitudeLength, got %v", err)
	}
	if err := client.SetAmplitudes(ctx, []float64{0.5, -1, 2}); err != nil {
		t.Fatalf("SetAmplitudes: %v", err)
	}

	if _, ok, err := client.GetZMean(ctx); err != nil || ok {
		t.Errorf("GetZMean on legacy archive = ok %v, err %v; want false, nil", ok, err)
	}
	if _, ok, err := client.EditZ(ctx, types.Z{}, []float64{1}); err != nil || ok {
		t.Errorf("EditZ on legacy archive = ok %v, err %v; want false, nil", ok, err)
	}

	_, err = client.SynthesizeNoZ(ctx, []ipc.EditItem{{Pitch: 60, Edits: []float64{1}}})
	if !errors.Is(err, ErrBatchFailed) {
		t.Errorf("SynthesizeNoZ on legacy archive: expected ErrBatchFailed, got %v", err)
	}

	// Layer offsets still apply to code-based synthesis.
	zs, err := client.RandZ(ctx, 1)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	items, err := client.GenAudio(ctx, []ipc.GenAudioItem{{Pitch: 60, Z: zs[0]}})
	if err != nil {
		t.Fatalf("GenAudio with amplitudes: %v", err)
	}
	if items[0].Status != types.ItemOK {
		t.Errorf("status = %v, want ok", items[0].Status)
	}
}

func TestClient_LatentArchive(t *testing.T) {
	client, _, _ := startInProcess(t, false)
	ctx := context.Background()

	if _, err := client.LoadComponents(ctx, writeArchive(t, 2, true)); err != nil {
		t.Fatalf("LoadComponents: %v", err)
	}

	mean, ok, err := client.GetZMean(ctx)
	if err != nil || !ok {
		t.Fatalf("GetZMean = ok %v, err %v", ok, err)
	}
	if mean[0] != 0.5 || mean[types.ZSize-1] != 0.5 {
		t.Errorf("mean = [%v ... %v], want 0.5", mean[0], mean[types.ZSize-1])
	}

	edited, ok, err := client.EditZ(ctx, types.Z{}, []float64{2, -1})
	if err != nil || !ok {
		t.Fatalf("EditZ = ok %v, err %v", ok, err)
	}
	if edited[0] != 2 || edited[1] != -1 || edited[2] != 0 {
		t.Errorf("EditZ = [%v %v %v ...], want [2 -1 0 ...]", edited[0], edited[1], edited[2])
	}

	items, err := client.SynthesizeNoZ(ctx, []ipc.EditItem{
		{Pitch: 60, Edits: []float64{1}},
		{Pitch: 64, Edits: nil},
	})
	if err != nil {
		t.Fatalf("SynthesizeNoZ: %v", err)
	}
	if len(items) != 2 || items[0].Status != types.ItemOK || items[1].Status != types.ItemOK {
		t.Errorf("SynthesizeNoZ items = %+v", items)
	}
}

func TestClient_CloseStopsWorker(t *testing.T) {
	client, _, done := startInProcess(t, false)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := waitRun(t, done); err != nil {
		t.Errorf("worker Run = %v, want nil after end-of-stream", err)
	}
}

func TestClient_CancelMarksBroken(t *testing.T) {
	hostEnd, workerEnd := transport.Pipe()
	defer workerEnd.Close()

	// A worker that handshakes and then never answers.
	go func() {
		enc := ipc.NewEncoder(workerEnd)
		_ = enc.Send(&ipc.InitMessage{Info: types.AudioInfo{AudioLength: 4, SampleRate: 16000}})
		buf := make([]byte, 4096)
		for {
			if _, err := workerEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	client, err := Handshake(hostEnd, testLimits(), nil)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.RandZ(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if _, err := client.RandZ(context.Background(), 1); !errors.Is(err, ErrClientBroken) {
		t.Errorf("expected ErrClientBroken after abort, got %v", err)
	}
}

func TestClient_CanceledBeforeSend(t *testing.T) {
	client, _, _ := startInProcess(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.RandZ(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}

	// Nothing was sent, so the client stays usable.
	if _, err := client.RandZ(context.Background(), 1); err != nil {
		t.Errorf("RandZ after pre-canceled call: %v", err)
	}
}
