package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/latent"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/model"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/transport"
	"github.com/sopimagenta/ganworker/types"
)

// fakeModel synthesizes notes whose first sample is the pitch and second
// sample is the code's first value.
type fakeModel struct {
	pitchMin, pitchMax int32
	samples            int
	zErr               error
	synthErr           error

	nextZ       float64
	fromZCalls  [][]int32
	offsets     []latent.Offsets
	editCalls   [][][]float64
	editArchive *pca.Latent
}

func newFakeModel() *fakeModel {
	return &fakeModel{pitchMin: 24, pitchMax: 84, samples: 4}
}

func (f *fakeModel) Info() types.AudioInfo {
	return types.AudioInfo{AudioLength: uint32(f.samples), SampleRate: 16000}
}

func (f *fakeModel) GenerateZ(_ context.Context, n int) ([]types.Z, error) {
	if f.zErr != nil {
		return nil, f.zErr
	}
	zs := make([]types.Z, n)
	for i := range zs {
		f.nextZ++
		zs[i][0] = f.nextZ
	}
	return zs, nil
}

func (f *fakeModel) note(z types.Z, pitch int32) types.Audio {
	s := make([]int16, f.samples)
	s[0] = int16(pitch)
	s[1] = int16(z[0])
	return types.Audio{Samples: s}
}

func (f *fakeModel) GenerateFromZ(_ context.Context, zs []types.Z, pitches []int32, offsets latent.Offsets) ([]types.Audio, error) {
	f.fromZCalls = append(f.fromZCalls, pitches)
	f.offsets = append(f.offsets, offsets)
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	out := make([]types.Audio, len(zs))
	for i := range zs {
		if pitches[i] < f.pitchMin || pitches[i] > f.pitchMax {
			return nil, &model.PitchError{Pitch: pitches[i]}
		}
		out[i] = f.note(zs[i], pitches[i])
	}
	return out, nil
}

func (f *fakeModel) GenerateFromEdits(ctx context.Context, pitches []int32, edits [][]float64, archive *pca.Latent) ([]types.Audio, error) {
	f.editCalls = append(f.editCalls, edits)
	f.editArchive = archive
	zs := make([]types.Z, len(edits))
	for i, row := range edits {
		zs[i] = latent.FromEdits(archive, row)
	}
	return f.GenerateFromZ(ctx, zs, pitches, nil)
}

// mapLoader serves archives from memory.
type mapLoader map[string]pca.Archive

func (m mapLoader) Load(_ context.Context, path string) (pca.Archive, error) {
	a, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("open archive: %q not found", path)
	}
	return a, nil
}

func legacyArchive(t *testing.T, k int) *pca.Legacy {
	t.Helper()
	data := make([]float64, k*2)
	stdev := make([]float64, k)
	for i := range k {
		data[i*2] = 1
		stdev[i] = float64(i + 1)
	}
	a, err := pca.NewLegacy(pca.Components{
		Comp:   pca.Tensor{Shape: []int{k, 1, 2}, Data: data},
		StdDev: stdev,
		Layer:  "conv2d_0",
	})
	if err != nil {
		t.Fatalf("NewLegacy: %v", err)
	}
	return a
}

func latentArchive(t *testing.T, k int) *pca.Latent {
	t.Helper()
	comp := make([]float64, k)
	stdev := make([]float64, k)
	zc := make([]float64, k*types.ZSize)
	for i := range k {
		comp[i] = 1
		stdev[i] = 1
		zc[i*types.ZSize+i] = 1
	}
	zm := make([]float64, types.ZSize)
	for i := range zm {
		zm[i] = 2
	}
	a, err := pca.NewLatent(
		pca.Components{Comp: pca.Tensor{Shape: []int{k, 1}, Data: comp}, StdDev: stdev, Layer: "z"},
		2,
		pca.Tensor{Shape: []int{k, 1, types.ZSize}, Data: zc},
		pca.Tensor{Shape: []int{1, types.ZSize}, Data: zm},
	)
	if err != nil {
		t.Fatalf("NewLatent: %v", err)
	}
	return a
}

// harness drives a Worker over an in-process pipe.
type harness struct {
	t         *testing.T
	conn      transport.Stream
	enc       *ipc.Encoder
	dec       *ipc.Decoder
	worker    *Worker
	session   *Session
	collector *metrics.Collector
	done      chan error
	info      types.AudioInfo
}

func startWorker(t *testing.T, m model.Model, loader ArchiveLoader, cfg Config) *harness {
	t.Helper()
	client, server := transport.Pipe()

	session := NewSession(loader)
	collector := metrics.NewCollector("worker", "", "")
	w := New(server, m, session, cfg, nil, collector)

	h := &harness{
		t:         t,
		conn:      client,
		enc:       ipc.NewEncoder(client),
		dec:       ipc.NewDecoder(client),
		worker:    w,
		session:   session,
		collector: collector,
		done:      make(chan error, 1),
	}
	go func() {
		h.done <- w.Run(context.Background())
		_ = server.Close()
	}()
	t.Cleanup(func() { _ = client.Close() })

	if err := h.dec.ExpectTag(ipc.OutTagInit); err != nil {
		t.Fatalf("expected init: %v", err)
	}
	init, err := ipc.DecodeInit(h.dec)
	if err != nil {
		t.Fatalf("decode init: %v", err)
	}
	h.info = init.Info
	return h
}

func (h *harness) send(m ipc.Message) {
	h.t.Helper()
	if err := h.enc.Send(m); err != nil {
		h.t.Fatalf("send %T: %v", m, err)
	}
}

func (h *harness) expect(want ipc.Tag) {
	h.t.Helper()
	tag, err := h.dec.ReadTag()
	if err != nil {
		h.t.Fatalf("expected %s: %v", ipc.OutTagName(want), err)
	}
	if tag == want {
		return
	}
	if tag == ipc.OutTagError {
		if reply, err := ipc.DecodeErrorReply(h.dec); err == nil {
			h.t.Fatalf("got error reply instead of %s: %v", ipc.OutTagName(want), reply)
		}
	}
	h.t.Fatalf("got %s, want %s", ipc.OutTagName(tag), ipc.OutTagName(want))
}

func (h *harness) readZ() []types.Z {
	h.t.Helper()
	h.expect(ipc.OutTagZ)
	res, err := ipc.DecodeZResult(h.dec)
	if err != nil {
		h.t.Fatalf("decode z: %v", err)
	}
	return res.Zs
}

func (h *harness) readAudio() []types.Audio {
	h.t.Helper()
	h.expect(ipc.OutTagAudio)
	res, err := ipc.DecodeAudioResult(h.dec)
	if err != nil {
		h.t.Fatalf("decode audio: %v", err)
	}
	return res.Audios
}

func (h *harness) readStatus() []types.AudioItem {
	h.t.Helper()
	h.expect(ipc.OutTagAudioStatus)
	res, err := ipc.DecodeAudioStatusResult(h.dec)
	if err != nil {
		h.t.Fatalf("decode audio status: %v", err)
	}
	return res.Items
}

func (h *harness) readLoad() int {
	h.t.Helper()
	h.expect(ipc.OutTagLoadComponents)
	res, err := ipc.DecodeLoadComponentsResult(h.dec)
	if err != nil {
		h.t.Fatalf("decode load components: %v", err)
	}
	return res.Count
}

func (h *harness) readError() *ipc.ErrorReply {
	h.t.Helper()
	h.expect(ipc.OutTagError)
	res, err := ipc.DecodeErrorReply(h.dec)
	if err != nil {
		h.t.Fatalf("decode error reply: %v", err)
	}
	return res
}

// closeAndWait closes the host end and returns the worker's exit error.
func (h *harness) closeAndWait() error {
	h.t.Helper()
	_ = h.conn.Close()
	return h.wait()
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("worker did not stop")
		return nil
	}
}

func pipeForCancel(t *testing.T) (transport.Stream, transport.Stream) {
	t.Helper()
	client, server := transport.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}
