// Package main provides the ganworker entrypoint.
//
// The worker serves the synthesis protocol on its standard input and output
// (or on a unix socket with --socket). Standard output carries protocol bytes
// only; diagnostics go to standard error.
//
// Usage:
//
//	ganworker [--config f] [--socket path] <checkpoint_dir> <batch_size> [memory_fraction]
//
// Exit codes:
//   - 0: the host closed the stream between messages
//   - 1: bad arguments or config
//   - 2: protocol fault
//   - 3: model or startup failure
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/config"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/log"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/model"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/transport"
	"github.com/sopimagenta/ganworker/types"
	"github.com/sopimagenta/ganworker/worker"
)

// Exit codes shared with the host's runtime package.
const (
	exitClean   = 0
	exitUsage   = 1
	exitFault   = 2
	exitStartup = 3
)

// shutdownGrace bounds how long a signal waits for the dispatch loop to
// return before the process exits.
const shutdownGrace = time.Second

// exitProcess is replaced in tests.
var exitProcess = os.Exit

// workerArgs holds the parsed positional arguments.
type workerArgs struct {
	checkpoint     string
	batchSize      int
	memoryFraction float64
}

func main() {
	app := &cli.App{
		Name:           "ganworker",
		Usage:          "Serve note synthesis requests over a framed binary stream",
		ArgsUsage:      "<checkpoint_dir> <batch_size> [memory_fraction]",
		Version:        types.Version,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"GANWORKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Serve on a unix socket at this path instead of stdin/stdout",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error (overrides log.level)",
			},
		},
		Action: serveAction,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit
		// This branch is only reached if ExitErrHandler didn't exit
		os.Exit(exitUsage)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected errors are usage errors: nothing was served yet.
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitUsage)
}

func serveAction(c *cli.Context) error {
	args, err := parseArgs(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitUsage)
	}

	level := cfg.Log.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger, err := log.NewLoggerWithLevel(log.Context{
		Component:  "worker",
		Checkpoint: args.checkpoint,
		PID:        os.Getpid(),
	}, os.Stderr, level)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	code := serve(ctx, args, cfg, c.String("socket"), logger)
	return cli.Exit("", code)
}

// parseArgs validates the positional arguments.
func parseArgs(args []string) (workerArgs, error) {
	if len(args) < 2 || len(args) > 3 {
		return workerArgs{}, errors.New("usage: ganworker <checkpoint_dir> <batch_size> [memory_fraction]")
	}

	out := workerArgs{checkpoint: args[0]}
	if out.checkpoint == "" {
		return workerArgs{}, errors.New("checkpoint_dir must not be empty")
	}

	batch, err := strconv.Atoi(args[1])
	if err != nil || batch <= 0 {
		return workerArgs{}, fmt.Errorf("batch_size must be a positive integer, got %q", args[1])
	}
	out.batchSize = batch

	if len(args) == 3 {
		frac, err := strconv.ParseFloat(args[2], 64)
		if err != nil || frac < 0 || frac > 1 {
			return workerArgs{}, fmt.Errorf("memory_fraction must be a number in [0, 1], got %q", args[2])
		}
		out.memoryFraction = frac
	}
	return out, nil
}

// workerConfig derives the dispatch loop settings from the parsed arguments
// and config. synthesis.batch_size replaces the command-line batch size when set.
func workerConfig(args workerArgs, cfg *config.Config) worker.Config {
	batch := args.batchSize
	if cfg.Synthesis.BatchSize > 0 {
		batch = cfg.Synthesis.BatchSize
	}
	limits := ipc.DefaultLimits()
	if cfg.Protocol.MaxBatch > 0 {
		limits.MaxCount = cfg.Protocol.MaxBatch
	}
	if cfg.Protocol.MaxEdits > 0 {
		limits.MaxEdits = cfg.Protocol.MaxEdits
	}
	return worker.Config{
		BatchSize:      batch,
		PartialResults: cfg.Synthesis.PartialResults,
		Limits:         limits,
	}
}

// serve loads the model, opens the stream and runs the dispatch loop.
// It returns the process exit code.
func serve(ctx context.Context, args workerArgs, cfg *config.Config, socket string, logger *log.Logger) int {
	wcfg := workerConfig(args, cfg)

	m, err := model.Open(args.checkpoint, model.Options{
		BatchSize:      wcfg.BatchSize,
		MemoryFraction: args.memoryFraction,
	})
	if err != nil {
		logger.Error("model load failed", map[string]any{"error": err.Error()})
		return exitStartup
	}

	stream, err := openStream(ctx, socket)
	if err != nil {
		logger.Error("transport setup failed", map[string]any{"error": err.Error()})
		return exitStartup
	}
	defer func() { _ = stream.Close() }()

	collector := metrics.NewCollector("worker", args.checkpoint, "")
	session := worker.NewSession(pca.NewLoader(pca.S3Config{
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.S3PathStyle,
	}))

	// A signal closes the stream. Closing a socket unblocks the pending read
	// and Run returns; a blocking stdin pipe stays blocked, so the process
	// exits from here once the grace period runs out.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	stopped := make(chan struct{})
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("signal received", map[string]any{"signal": sig.String()})
			close(stopped)
			_ = stream.Close()
		case <-ctx.Done():
			return
		case <-finished:
			return
		}
		select {
		case <-finished:
		case <-time.After(shutdownGrace):
			logSnapshot(logger, collector.Snapshot())
			_ = logger.Sync()
			exitProcess(exitClean)
		}
	}()

	w := worker.New(stream, m, session, wcfg, logger, collector)

	logger.Info("worker started", map[string]any{
		"batch_size":      wcfg.BatchSize,
		"partial_results": wcfg.PartialResults,
		"socket":          socket,
	})
	runErr := w.Run(ctx)
	logSnapshot(logger, collector.Snapshot())

	select {
	case <-stopped:
		return exitClean
	default:
	}
	return exitCodeFor(runErr)
}

// exitCodeFor maps the dispatch loop result to an exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitClean
	}
	if f, ok := worker.AsFault(err); ok && f.Kind == worker.FaultCanceled {
		return exitClean
	}
	return exitFault
}

func openStream(ctx context.Context, socket string) (transport.Stream, error) {
	if socket == "" {
		return transport.Stdio(), nil
	}
	return transport.ListenUnix(ctx, socket)
}

func logSnapshot(logger *log.Logger, s metrics.Snapshot) {
	logger.Info("worker stopped", map[string]any{
		"requests_total":       s.RequestsTotal,
		"requests_by_tag":      s.RequestsByTag,
		"framing_faults":       s.FramingFaults,
		"decode_errors":        s.DecodeErrors,
		"contract_violations":  s.ContractViolations,
		"pitch_failures":       s.PitchFailures,
		"model_failures":       s.ModelFailures,
		"unsupported_versions": s.UnsupportedVersions,
		"codes_sent":           s.CodesSent,
		"audio_items_sent":     s.AudioItemsSent,
		"audio_bytes_sent":     s.AudioBytesSent,
		"component_loads":      s.ComponentLoads,
	})
}
