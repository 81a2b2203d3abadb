package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/sopimagenta/ganworker/adapter"
	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/runtime"
)

// RenderCommand returns the render command.
// Render is the only command that synthesizes audio.
func RenderCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		&cli.StringFlag{
			Name:     "pitches",
			Usage:    "MIDI pitches to render: list and ranges, e.g. 48,60-64",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "Number of random latent codes to draw",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "slerp-steps",
			Usage: "Interpolated codes inserted between consecutive random codes",
		},
		&cli.StringFlag{
			Name:  "components",
			Usage: "PCA archive to load before rendering (path or s3://bucket/key)",
		},
		&cli.StringFlag{
			Name:  "amplitudes",
			Usage: "Comma-separated component amplitudes (requires --components)",
		},
		&cli.StringFlag{
			Name:  "edits",
			Usage: "YAML or JSON file with a list of edit vectors; replaces random codes",
		},
		&cli.IntFlag{
			Name:  "render-batch",
			Usage: "Notes per synthesis request",
			Value: runtime.DefaultRenderBatch,
		},
		&cli.StringFlag{
			Name:     "out",
			Usage:    "Directory receiving one WAV file per note",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "Session ID partitioning the capture (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON render report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	}
	flags = append(flags, workerFlags()...)
	flags = append(flags, storageFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:   "render",
		Usage:  "Render notes through a worker to WAV files",
		Flags:  flags,
		Action: renderAction,
	}
}

// renderRequest holds the parsed synthesis flags.
type renderRequest struct {
	pitches    []int32
	count      int
	slerpSteps int
	components string
	amplitudes []float64
	edits      [][]float64
	batch      int
	outputDir  string
}

// renderSummary is printed when the render finishes.
type renderSummary struct {
	Session     string `json:"session"`
	Outcome     string `json:"outcome"`
	Notes       int    `json:"notes"`
	Failed      int    `json:"failed"`
	OutputDir   string `json:"output_dir"`
	StoragePath string `json:"storage_path,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Worker      string `json:"worker"`
}

func renderAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	req, err := parseRenderRequest(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	storage := resolveStorage(c, cfg)
	if err := validateStorageConfig(storage); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	adapterChoice, err := parseAdapterConfig(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	wc := resolveWorker(c, cfg)

	logger, err := newHostLogger(cfg, wc.Checkpoint)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	collector := metrics.NewCollector("host", wc.Checkpoint, storage.backend)
	pcfg, err := buildProcessConfig(wc, cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	session := c.String("session")
	if session == "" {
		session = uuid.NewString()
	}
	started := time.Now()
	day := lode.DeriveDay(started)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("interrupted, stopping render", nil)
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		capture     lode.Client
		storagePath string
	)
	if storage.enabled() {
		capture, err = buildCapture(ctx, storage, lode.Config{
			Dataset:    storage.dataset,
			Session:    session,
			Day:        day,
			Checkpoint: wc.Checkpoint,
		}, collector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to initialize capture storage: %v", err), exitUsage)
		}
		defer func() { _ = capture.Close() }()
		storagePath = buildStoragePath(storage, session, day)
	}

	var notifier adapter.Adapter
	if adapterChoice != nil {
		notifier, err = buildAdapter(adapterChoice)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to create %s adapter: %v", adapterChoice.kind, err), exitUsage)
		}
		defer func() { _ = notifier.Close() }()
	}

	proc, err := runtime.StartWorker(ctx, pcfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker startup failed: %v", err), exitWorkerStartup)
	}

	result, renderErr := runtime.Render(ctx, proc.Client(), runtime.RenderConfig{
		Pitches:     req.pitches,
		Count:       req.count,
		SlerpSteps:  req.slerpSteps,
		Components:  req.components,
		Amplitudes:  req.amplitudes,
		Edits:       req.edits,
		BatchSize:   req.batch,
		OutputDir:   req.outputDir,
		Capture:     capture,
		StoragePath: storagePath,
		Adapter:     notifier,
		Session:     session,
		Checkpoint:  wc.Checkpoint,
		Logger:      logger,
		Collector:   collector,
	})

	var workerExit *runtime.ExitResult
	if renderErr == nil || (!errors.Is(renderErr, runtime.ErrClientBroken) && ctx.Err() == nil) {
		workerExit, err = proc.Close()
	} else {
		_ = proc.Kill()
		workerExit, err = proc.Wait()
	}
	if err != nil {
		logger.Warn("failed to reap worker", map[string]any{"error": err.Error()})
	}
	if renderErr != nil {
		return cli.Exit(fmt.Sprintf("render failed: %v", renderErr), renderErrorExitCode(renderErr))
	}

	code := outcomeToExitCode(result.Outcome)
	if path := c.String("report"); path != "" {
		report := runtime.BuildRenderReport(result, collector.Snapshot(), code, workerExit)
		if err := runtime.WriteRenderReport(report, path); err != nil {
			logger.Warn("failed to write render report", map[string]any{"error": err.Error()})
		}
	}

	if !c.Bool("quiet") {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := r.Render(summarizeRender(session, storagePath, result, workerExit)); err != nil {
			return err
		}
	}

	if code != exitSuccess {
		return cli.Exit("", code)
	}
	return nil
}

// parseRenderRequest validates the synthesis flags.
func parseRenderRequest(c *cli.Context) (*renderRequest, error) {
	pitches, err := parsePitches(c.String("pitches"))
	if err != nil {
		return nil, err
	}
	req := &renderRequest{
		pitches:    pitches,
		count:      c.Int("count"),
		slerpSteps: c.Int("slerp-steps"),
		components: c.String("components"),
		batch:      c.Int("render-batch"),
		outputDir:  c.String("out"),
	}
	if req.outputDir == "" {
		return nil, errors.New("--out is required")
	}
	if req.count <= 0 {
		return nil, fmt.Errorf("--count must be positive, got %d", req.count)
	}
	if req.slerpSteps < 0 {
		return nil, fmt.Errorf("--slerp-steps must not be negative, got %d", req.slerpSteps)
	}
	if req.batch <= 0 {
		return nil, fmt.Errorf("--render-batch must be positive, got %d", req.batch)
	}
	if s := c.String("amplitudes"); s != "" {
		if req.components == "" {
			return nil, errors.New("--amplitudes requires --components")
		}
		if req.amplitudes, err = parseFloats(s); err != nil {
			return nil, fmt.Errorf("invalid --amplitudes: %w", err)
		}
	}
	if path := c.String("edits"); path != "" {
		if req.components == "" {
			return nil, errors.New("--edits requires --components")
		}
		if req.edits, err = loadEdits(path); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// parsePitches parses a comma-separated list of MIDI pitches and inclusive
// ranges ("48,60-64").
func parsePitches(s string) ([]int32, error) {
	var out []int32
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parsePitch(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parsePitch(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("invalid pitch range %q", part)
			}
		}
		for p := first; p <= last; p++ {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("--pitches must name at least one pitch")
	}
	return out, nil
}

func parsePitch(s string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid pitch %q", s)
	}
	if v < 0 || v > 127 {
		return 0, fmt.Errorf("pitch %d outside MIDI range 0-127", v)
	}
	return int32(v), nil
}

// parseFloats parses a comma-separated list of floats.
func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// loadEdits reads a YAML (or JSON) list of edit vectors.
func loadEdits(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read edits file: %w", err)
	}
	var edits [][]float64
	if err := yaml.Unmarshal(data, &edits); err != nil {
		return nil, fmt.Errorf("invalid edits file %s: %w", path, err)
	}
	if len(edits) == 0 {
		return nil, fmt.Errorf("edits file %s contains no vectors", path)
	}
	return edits, nil
}

// renderErrorExitCode maps an aborted render to the host exit code. Requests
// the worker rejected leave the session intact and count as usage errors.
func renderErrorExitCode(err error) int {
	var reply *ipc.ErrorReply
	switch {
	case errors.As(err, &reply),
		errors.Is(err, runtime.ErrAmplitudeLength),
		errors.Is(err, runtime.ErrNoComponents):
		return exitUsage
	default:
		return exitWorkerFault
	}
}

// outcomeToExitCode maps a render outcome to the host exit code.
// Partial renders succeed; the failed notes are in the capture and report.
func outcomeToExitCode(outcome string) int {
	switch outcome {
	case adapter.OutcomeSuccess, adapter.OutcomePartial:
		return exitSuccess
	case adapter.OutcomeFailed:
		return exitRenderFailed
	default:
		return exitWorkerFault
	}
}

func summarizeRender(session, storagePath string, result *runtime.RenderResult, worker *runtime.ExitResult) renderSummary {
	summary := renderSummary{
		Session:     session,
		Outcome:     result.Outcome,
		Notes:       len(result.Notes),
		Failed:      result.Failed,
		StoragePath: storagePath,
		DurationMs:  result.Duration.Milliseconds(),
	}
	if result.Event != nil {
		summary.OutputDir = result.Event.OutputDir
	}
	if worker != nil {
		summary.Worker = worker.Reason
	}
	return summary
}
