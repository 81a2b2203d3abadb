package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/reader"
	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/runtime"
)

// ProbeCommand returns the probe command.
// Probe starts a worker, waits for its handshake, optionally loads an
// archive and closes the session. It synthesizes nothing.
func ProbeCommand() *cli.Command {
	flags := append([]cli.Flag{ConfigFlag}, TUIReadOnlyFlags()...)
	flags = append(flags, workerFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:  "components",
		Usage: "PCA archive to load during the probe",
	})
	return &cli.Command{
		Name:   "probe",
		Usage:  "Start a worker, report its audio format and stop it",
		Flags:  flags,
		Action: probeAction,
	}
}

func probeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	wc := resolveWorker(c, cfg)
	logger, err := newHostLogger(cfg, wc.Checkpoint)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	collector := metrics.NewCollector("host", wc.Checkpoint, "")
	pcfg, err := buildProcessConfig(wc, cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	resp, err := probeWorker(c.Context, pcfg, c.String("components"))
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_probe", resp)
	}
	return r.Render(resp)
}

// probeWorker runs one probe session. Errors are cli.ExitCoders.
func probeWorker(ctx context.Context, pcfg runtime.ProcessConfig, components string) (*reader.ProbeResponse, error) {
	started := time.Now()
	proc, err := runtime.StartWorker(ctx, pcfg)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("worker startup failed: %v", err), exitWorkerStartup)
	}
	handshake := time.Since(started)

	client := proc.Client()
	info := client.Info()
	resp := &reader.ProbeResponse{
		Command:     strings.Join(pcfg.Argv, " "),
		PID:         proc.PID(),
		AudioLength: info.AudioLength,
		SampleRate:  info.SampleRate,
		HandshakeMs: handshake.Milliseconds(),
	}
	if info.SampleRate > 0 {
		resp.NoteSeconds = float64(info.AudioLength) / float64(info.SampleRate)
	}

	if components != "" {
		if err := probeComponents(ctx, client, components, resp); err != nil {
			_, _ = proc.Close()
			return nil, cli.Exit(fmt.Sprintf("probe failed: %v", err), renderErrorExitCode(err))
		}
	}

	result, err := proc.Close()
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("worker did not exit: %v", err), exitWorkerFault)
	}
	resp.ExitCode = result.ExitCode
	if result.ExitCode != runtime.ExitCodeClean {
		return nil, cli.Exit(result.Reason, exitWorkerFault)
	}
	return resp, nil
}

func probeComponents(ctx context.Context, client *runtime.Client, path string, resp *reader.ProbeResponse) error {
	count, err := client.LoadComponents(ctx, path)
	if err != nil {
		return fmt.Errorf("load components %s: %w", path, err)
	}
	resp.Components = &count

	mean, ok, err := client.GetZMean(ctx)
	if err != nil {
		return fmt.Errorf("get z mean: %w", err)
	}
	if ok {
		resp.ZMeanNorm = ptr(mean.Norm())
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
