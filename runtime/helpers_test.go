package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sopimagenta/ganworker/adapter"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/model"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/transport"
	"github.com/sopimagenta/ganworker/types"
	"github.com/sopimagenta/ganworker/worker"
)

// testModelConfig is a tiny procedural checkpoint: 64 samples at 16 kHz.
func testModelConfig() model.Config {
	return model.Config{
		AudioLength: 64,
		SampleRate:  16000,
		PitchMin:    24,
		PitchMax:    84,
		ZSize:       types.ZSize,
		Seed:        7,
		Harmonics:   4,
	}
}

// startInProcess runs a worker on one end of a pipe and returns a client on
// the other. The returned channel yields the worker's Run result.
func startInProcess(t *testing.T, partial bool) (*Client, *metrics.Collector, <-chan error) {
	t.Helper()
	m, err := model.NewProcedural(testModelConfig(), model.Options{BatchSize: 4})
	if err != nil {
		t.Fatalf("NewProcedural: %v", err)
	}

	hostEnd, workerEnd := transport.Pipe()
	w := worker.New(workerEnd, m, worker.NewSession(pca.NewLoader(pca.S3Config{})),
		worker.Config{BatchSize: 4, PartialResults: partial}, nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background())
		_ = workerEnd.Close()
	}()

	collector := metrics.NewCollector("host", "test", "memory")
	client, err := Handshake(hostEnd, testLimits(), collector)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, collector, done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
		return nil
	}
}

// writeArchive writes a msgpack archive with k components to a temp file.
// latentDirs selects a version 2 archive with unit latent directions and a
// mean of all 0.5.
func writeArchive(t *testing.T, k int, latentDirs bool) string {
	t.Helper()
	comp := make([]float64, k*2)
	stdev := make([]float64, k)
	for i := range k {
		comp[i*2] = 1
		stdev[i] = float64(i + 1)
	}
	base := pca.Components{Comp: pca.Tensor{Shape: []int{k, 1, 2}, Data: comp}, StdDev: stdev, Layer: "conv2d_0"}

	var archive pca.Archive
	if latentDirs {
		zc := make([]float64, k*types.ZSize)
		for i := range k {
			zc[i*types.ZSize+i] = 1
		}
		zm := make([]float64, types.ZSize)
		for i := range zm {
			zm[i] = 0.5
		}
		a, err := pca.NewLatent(base, pca.LatentVersion,
			pca.Tensor{Shape: []int{k, types.ZSize}, Data: zc},
			pca.Tensor{Shape: []int{types.ZSize}, Data: zm})
		if err != nil {
			t.Fatalf("NewLatent: %v", err)
		}
		archive = a
	} else {
		a, err := pca.NewLegacy(base)
		if err != nil {
			t.Fatalf("NewLegacy: %v", err)
		}
		archive = a
	}

	data, err := pca.Marshal(archive)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "components.msgpack")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// syncBuffer is a bytes.Buffer safe for concurrent writes and reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recordingAdapter records published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.RenderCompletedEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, event *adapter.RenderCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

func testLimits() ipc.Limits {
	return ipc.DefaultLimits()
}
