package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/sopimagenta/ganworker/adapter"
	"github.com/sopimagenta/ganworker/cli/reader"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/runtime"
)

func TestParsePitches(t *testing.T) {
	tests := []struct {
		in      string
		want    []int32
		wantErr string
	}{
		{in: "60", want: []int32{60}},
		{in: "48, 60,72", want: []int32{48, 60, 72}},
		{in: "60-63", want: []int32{60, 61, 62, 63}},
		{in: "24,60-61,", want: []int32{24, 60, 61}},
		{in: "", wantErr: "at least one pitch"},
		{in: "c4", wantErr: "invalid pitch"},
		{in: "64-60", wantErr: "invalid pitch range"},
		{in: "128", wantErr: "outside MIDI range"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePitches(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("1, -0.5,2e-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(got, []float64{1, -0.5, 0.2}) {
		t.Errorf("got %v", got)
	}
	if _, err := parseFloats("1,,2"); err == nil {
		t.Error("expected error for an empty element")
	}
}

func TestLoadEdits(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "edits.yaml")
	if err := os.WriteFile(yamlPath, []byte("- [1.5, -1]\n- [0]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	edits, err := loadEdits(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(edits) != 2 || !slices.Equal(edits[0], []float64{1.5, -1}) {
		t.Errorf("edits = %v", edits)
	}

	jsonPath := filepath.Join(dir, "edits.json")
	if err := os.WriteFile(jsonPath, []byte(`[[0.25, 0.5, 1]]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if edits, err := loadEdits(jsonPath); err != nil || len(edits[0]) != 3 {
		t.Errorf("json: %v, %v", edits, err)
	}

	emptyPath := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(emptyPath, []byte("[]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadEdits(emptyPath); err == nil || !strings.Contains(err.Error(), "no vectors") {
		t.Errorf("empty: got %v", err)
	}
	if _, err := loadEdits(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestOutcomeToExitCode(t *testing.T) {
	tests := []struct {
		outcome string
		want    int
	}{
		{adapter.OutcomeSuccess, exitSuccess},
		{adapter.OutcomePartial, exitSuccess},
		{adapter.OutcomeFailed, exitRenderFailed},
		{"unknown", exitWorkerFault},
	}
	for _, tt := range tests {
		if got := outcomeToExitCode(tt.outcome); got != tt.want {
			t.Errorf("outcomeToExitCode(%q) = %d, want %d", tt.outcome, got, tt.want)
		}
	}
}

func TestRenderErrorExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"worker rejected archive", fmt.Errorf("load components: %w", ipc.NewErrorReply(ipc.ErrCodeLoadFailed, "no such file")), exitUsage},
		{"amplitude length", fmt.Errorf("set amplitudes: %w", runtime.ErrAmplitudeLength), exitUsage},
		{"broken stream", runtime.ErrClientBroken, exitWorkerFault},
		{"other", errors.New("boom"), exitWorkerFault},
	}
	for _, tt := range tests {
		if got := renderErrorExitCode(tt.err); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRenderAction_UsageErrors(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{
			name:        "bad pitches",
			args:        []string{"--pitches", "c4", "--out", "x", "--checkpoint", "ckpt", "--batch", "4"},
			errContains: "invalid pitch",
		},
		{
			name:        "amplitudes without components",
			args:        []string{"--pitches", "60", "--out", "x", "--amplitudes", "1,2"},
			errContains: "--amplitudes requires --components",
		},
		{
			name:        "edits without components",
			args:        []string{"--pitches", "60", "--out", "x", "--edits", "e.yaml"},
			errContains: "--edits requires --components",
		},
		{
			name:        "zero count",
			args:        []string{"--pitches", "60", "--out", "x", "--count", "0"},
			errContains: "--count must be positive",
		},
		{
			name:        "fs storage without path",
			args:        []string{"--pitches", "60", "--out", "x", "--storage-backend", "fs"},
			errContains: "--storage-path is required",
		},
		{
			name:        "missing checkpoint",
			args:        []string{"--pitches", "60", "--out", "x", "--batch", "4"},
			errContains: "checkpoint is required",
		},
		{
			name:        "missing batch",
			args:        []string{"--pitches", "60", "--out", "x", "--checkpoint", "ckpt"},
			errContains: "batch size must be positive",
		},
		{
			name:        "memory fraction out of range",
			args:        []string{"--pitches", "60", "--out", "x", "--checkpoint", "ckpt", "--batch", "4", "--memfrac", "2"},
			errContains: "--memfrac must be in [0, 1]",
		},
		{
			name:        "webhook without url",
			args:        []string{"--pitches", "60", "--out", "x", "--adapter", "webhook"},
			errContains: "--adapter-url is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(RenderCommand())
			err := app.Run(append([]string{"ganhost", "render"}, tt.args...))
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.errContains)
			}
			if got := exitCode(t, err); got != exitUsage {
				t.Errorf("exit code = %d, want %d", got, exitUsage)
			}
		})
	}
}

func TestRenderAction_EndToEnd(t *testing.T) {
	workerCmd := helperWorker(t, "serve")
	outDir := filepath.Join(t.TempDir(), "wav")
	storeDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.json")

	app := newTestApp(RenderCommand())
	err := app.Run([]string{"ganhost", "render",
		"--worker-cmd", workerCmd,
		"--checkpoint", "procedural",
		"--batch", "4",
		"--pitches", "60,120",
		"--count", "2",
		"--slerp-steps", "1",
		"--render-batch", "1",
		"--out", outDir,
		"--session", "e2e",
		"--storage-backend", "fs",
		"--storage-path", storeDir,
		"--report", reportPath,
		"--quiet",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	// 3 codes (2 random + 1 interpolated) x 2 pitches; pitch 120 is untrained.
	wavs, _ := filepath.Glob(filepath.Join(outDir, "*.wav"))
	if len(wavs) != 3 {
		t.Errorf("wrote %d WAV files, want 3: %v", len(wavs), wavs)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report runtime.RenderReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Outcome != adapter.OutcomePartial || report.ExitCode != exitSuccess {
		t.Errorf("report outcome = %q, exit = %d", report.Outcome, report.ExitCode)
	}
	if report.Notes.Total != 6 || report.Notes.Failed != 3 {
		t.Errorf("report notes = %+v", report.Notes)
	}
	if report.Worker == nil || report.Worker.ExitCode != runtime.ExitCodeClean {
		t.Errorf("report worker = %+v", report.Worker)
	}
	if !strings.HasPrefix(report.StoragePath, "file://") {
		t.Errorf("storage path = %q", report.StoragePath)
	}

	ds, err := buildReadDataset(t.Context(), storageChoice{dataset: "notes", backend: "fs", path: storeDir})
	if err != nil {
		t.Fatalf("buildReadDataset: %v", err)
	}
	stats, err := sessionStats(t.Context(), reader.NewLodeReader(nil, ds), "e2e")
	if err != nil {
		t.Fatalf("sessionStats: %v", err)
	}
	if stats.Total != 6 || stats.OK != 3 || stats.Checkpoint != "procedural" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRenderAction_WorkerStartupFailure(t *testing.T) {
	workerCmd := helperWorker(t, "startup")

	app := newTestApp(RenderCommand())
	err := app.Run([]string{"ganhost", "render",
		"--worker-cmd", workerCmd,
		"--checkpoint", "missing",
		"--batch", "4",
		"--pitches", "60",
		"--out", t.TempDir(),
		"--quiet",
	})
	if got := exitCode(t, err); got != exitWorkerStartup {
		t.Errorf("exit code = %d, want %d (err %v)", got, exitWorkerStartup, err)
	}
}
