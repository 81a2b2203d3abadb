package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/model"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/transport"
	"github.com/sopimagenta/ganworker/worker"
)

const helperEnv = "GANWORKER_HELPER_MODE"

// TestHelperWorker is not a real test. It is re-executed by the process tests
// as a stand-in worker binary, selected by GANWORKER_HELPER_MODE.
func TestHelperWorker(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process only")
	}

	switch mode {
	case "serve":
		fmt.Fprintln(os.Stderr, "loading procedural checkpoint")
		m, err := model.NewProcedural(testModelConfig(), model.Options{BatchSize: 4})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitCodeStartup)
		}
		w := worker.New(transport.Stdio(), m, worker.NewSession(pca.NewLoader(pca.S3Config{})),
			worker.Config{BatchSize: 4}, nil, nil)
		if err := w.Run(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitCodeFault)
		}
		os.Exit(ExitCodeClean)
	case "startup":
		fmt.Fprintln(os.Stderr, "checkpoint not found")
		os.Exit(ExitCodeStartup)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(ExitCodeClean)
	}
	os.Exit(ExitCodeUsage)
}

func helperConfig(mode string, diag *syncBuffer, collector *metrics.Collector) ProcessConfig {
	return ProcessConfig{
		Argv:           []string{os.Args[0], "-test.run=^TestHelperWorker$"},
		Env:            []string{helperEnv + "=" + mode},
		StartupTimeout: 10 * time.Second,
		Diagnostics:    diag,
		Collector:      collector,
	}
}

func TestStartWorker_Session(t *testing.T) {
	diag := &syncBuffer{}
	collector := metrics.NewCollector("host", "test", "fs")

	proc, err := StartWorker(context.Background(), helperConfig("serve", diag, collector))
	if err != nil {
		t.Fatalf("StartWorker: %v", err)
	}
	if proc.PID() <= 0 {
		t.Errorf("PID() = %d", proc.PID())
	}

	client := proc.Client()
	if info := client.Info(); info.AudioLength != 64 || info.SampleRate != 16000 {
		t.Errorf("Info() = %+v", info)
	}
	zs, err := client.RandZ(context.Background(), 2)
	if err != nil {
		t.Fatalf("RandZ: %v", err)
	}
	if len(zs) != 2 {
		t.Errorf("RandZ returned %d codes", len(zs))
	}

	result, err := proc.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if result.ExitCode != ExitCodeClean {
		t.Errorf("ExitCode = %d (%s), want 0", result.ExitCode, result.Reason)
	}

	if got := diag.String(); !strings.Contains(got, StderrPrefix+"loading procedural checkpoint") {
		t.Errorf("diagnostics = %q, want prefixed worker line", got)
	}
	snap := collector.Snapshot()
	if snap.WorkerLaunchSuccess != 1 || snap.WorkerCrash != 0 {
		t.Errorf("launch success = %d, crashes = %d", snap.WorkerLaunchSuccess, snap.WorkerCrash)
	}
}

func TestStartWorker_StartupFailure(t *testing.T) {
	diag := &syncBuffer{}
	collector := metrics.NewCollector("host", "test", "fs")

	_, err := StartWorker(context.Background(), helperConfig("startup", diag, collector))
	if err == nil {
		t.Fatal("expected startup error")
	}
	if !strings.Contains(err.Error(), DescribeExit(ExitCodeStartup)) {
		t.Errorf("error = %v, want exit reason", err)
	}
	if !strings.Contains(diag.String(), "checkpoint not found") {
		t.Errorf("diagnostics = %q", diag.String())
	}
	if got := collector.Snapshot().WorkerLaunchFailure; got != 1 {
		t.Errorf("WorkerLaunchFailure = %d, want 1", got)
	}
}

func TestStartWorker_HandshakeTimeout(t *testing.T) {
	cfg := helperConfig("hang", &syncBuffer{}, nil)
	cfg.StartupTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err := StartWorker(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestStartWorker_EmptyArgv(t *testing.T) {
	if _, err := StartWorker(context.Background(), ProcessConfig{}); err == nil {
		t.Error("expected error for empty argv")
	}
}

func TestStartWorker_MissingBinary(t *testing.T) {
	collector := metrics.NewCollector("host", "test", "fs")
	_, err := StartWorker(context.Background(), ProcessConfig{
		Argv:      []string{"/nonexistent/ganworker", "ckpt", "8"},
		Collector: collector,
	})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if got := collector.Snapshot().WorkerLaunchFailure; got != 1 {
		t.Errorf("WorkerLaunchFailure = %d, want 1", got)
	}
}

func TestDescribeExit(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{ExitCodeClean, "cleanly"},
		{ExitCodeUsage, "arguments"},
		{ExitCodeFault, "protocol fault"},
		{ExitCodeStartup, "model"},
		{42, "unexpected code 42"},
	}
	for _, tt := range tests {
		if got := DescribeExit(tt.code); !strings.Contains(got, tt.want) {
			t.Errorf("DescribeExit(%d) = %q, want containing %q", tt.code, got, tt.want)
		}
	}
}
