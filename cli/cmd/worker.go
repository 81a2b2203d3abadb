package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/config"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/log"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/runtime"
)

// Exit codes of host commands that talk to a worker.
const (
	exitSuccess       = 0
	exitUsage         = 1 // bad flags or config
	exitWorkerFault   = 2 // protocol or transport failure mid-session
	exitWorkerStartup = 3 // worker failed to launch or handshake
	exitRenderFailed  = 4 // every note failed
)

// resolveWorker merges worker flags over the config file.
func resolveWorker(c *cli.Context, cfg *config.Config) config.WorkerConfig {
	wc := configVal(cfg, func(c *config.Config) config.WorkerConfig { return c.Worker })
	wc.Command = resolveString(c, "worker-cmd", wc.Command)
	wc.Checkpoint = resolveString(c, "checkpoint", wc.Checkpoint)
	wc.BatchSize = resolveInt(c, "batch", wc.BatchSize)
	wc.MemoryFraction = resolveFloat64(c, "memfrac", wc.MemoryFraction)
	wc.StartupTimeout = config.Duration{Duration: resolveDuration(c, "startup-timeout", wc.StartupTimeout.Duration)}
	return wc
}

// buildProcessConfig validates the worker settings and assembles the launch
// configuration.
func buildProcessConfig(wc config.WorkerConfig, cfg *config.Config, logger *log.Logger, collector *metrics.Collector) (runtime.ProcessConfig, error) {
	if wc.MemoryFraction < 0 || wc.MemoryFraction > 1 {
		return runtime.ProcessConfig{}, fmt.Errorf("--memfrac must be in [0, 1], got %v", wc.MemoryFraction)
	}
	argv, err := wc.Argv()
	if err != nil {
		return runtime.ProcessConfig{}, err
	}

	limits := ipc.DefaultLimits()
	if pc := configVal(cfg, func(c *config.Config) config.ProtocolConfig { return c.Protocol }); pc.MaxEdits > 0 {
		limits.MaxEdits = pc.MaxEdits
	}

	return runtime.ProcessConfig{
		Argv:           argv,
		StartupTimeout: wc.StartupTimeout.Duration,
		Diagnostics:    os.Stderr,
		Limits:         limits,
		Logger:         logger,
		Collector:      collector,
	}, nil
}

// newHostLogger creates the host's structured logger on stderr.
func newHostLogger(cfg *config.Config, checkpoint string) (*log.Logger, error) {
	level := configVal(cfg, func(c *config.Config) string { return c.Log.Level })
	return log.NewLoggerWithLevel(log.Context{Component: "host", Checkpoint: checkpoint}, os.Stderr, level)
}
