package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sopimagenta/ganworker/iox"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/log"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/transport"
)

// Worker exit codes.
const (
	ExitCodeClean   = 0 // host closed the stream
	ExitCodeUsage   = 1 // bad arguments or config
	ExitCodeFault   = 2 // protocol fault
	ExitCodeStartup = 3 // model or startup failure
)

// DefaultStartupTimeout bounds the wait for the init handshake. Loading a
// real checkpoint can take a while.
const DefaultStartupTimeout = 2 * time.Minute

// StderrPrefix is prepended to every forwarded worker diagnostic line.
const StderrPrefix = "[ganworker] "

// DescribeExit returns a human-readable reason for a worker exit code.
func DescribeExit(code int) string {
	switch code {
	case ExitCodeClean:
		return "worker exited cleanly"
	case ExitCodeUsage:
		return "worker rejected its arguments or config"
	case ExitCodeFault:
		return "worker stopped on a protocol fault"
	case ExitCodeStartup:
		return "worker failed to load its model"
	default:
		return fmt.Sprintf("worker exited with unexpected code %d", code)
	}
}

// ProcessConfig configures a worker launch.
type ProcessConfig struct {
	// Argv is the full worker command line, including checkpoint and batch
	// size.
	Argv []string
	// Env is appended to the inherited environment.
	Env []string
	// StartupTimeout bounds the handshake (default DefaultStartupTimeout).
	StartupTimeout time.Duration
	// Diagnostics receives the worker's stderr, one prefixed line at a time
	// (default os.Stderr).
	Diagnostics io.Writer
	// Limits bounds what the client accepts from the worker.
	Limits    ipc.Limits
	Logger    *log.Logger
	Collector *metrics.Collector
}

// ExitResult describes how the worker process ended.
type ExitResult struct {
	ExitCode int
	Reason   string
}

// WorkerProcess supervises one worker process and its protocol client.
type WorkerProcess struct {
	config    ProcessConfig
	cmd       *exec.Cmd
	client    *Client
	stderrErr chan error
	logger    *log.Logger
}

// StartWorker launches the worker, starts forwarding its diagnostics and
// waits for the init handshake.
func StartWorker(ctx context.Context, cfg ProcessConfig) (*WorkerProcess, error) {
	if len(cfg.Argv) == 0 {
		return nil, errors.New("worker command is empty")
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stderr
	}
	if cfg.Limits == (ipc.Limits{}) {
		cfg.Limits = ipc.DefaultLimits()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	cmd := exec.CommandContext(ctx, cfg.Argv[0], cfg.Argv[1:]...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	logger.Info("starting worker process", map[string]any{"argv": cfg.Argv})
	if err := cmd.Start(); err != nil {
		cfg.Collector.IncWorkerLaunchFailure()
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	p := &WorkerProcess{
		config:    cfg,
		cmd:       cmd,
		stderrErr: make(chan error, 1),
		logger:    logger,
	}
	go func() {
		err := iox.ForwardLines(cfg.Diagnostics, stderr, StderrPrefix)
		if err != nil {
			// Keep draining so the worker never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, stderr)
		}
		p.stderrErr <- err
	}()

	client, err := p.handshake(transport.Join(stdout, stdin))
	if err != nil {
		cfg.Collector.IncWorkerLaunchFailure()
		_ = p.Kill()
		result, _ := p.Wait()
		if result != nil && result.ExitCode != ExitCodeClean {
			return nil, fmt.Errorf("%w (%s)", err, result.Reason)
		}
		return nil, err
	}
	p.client = client
	cfg.Collector.IncWorkerLaunchSuccess()

	info := client.Info()
	logger.Info("worker is ready", map[string]any{
		"pid":          cmd.Process.Pid,
		"audio_length": info.AudioLength,
		"sample_rate":  info.SampleRate,
	})
	return p, nil
}

// handshake reads the init message, killing the worker if it takes longer
// than the startup timeout.
func (p *WorkerProcess) handshake(stream transport.Stream) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := Handshake(stream, p.config.Limits, p.config.Collector)
		done <- result{c, err}
	}()

	timer := time.NewTimer(p.config.StartupTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.client, r.err
	case <-timer.C:
		_ = p.Kill()
		<-done
		return nil, fmt.Errorf("worker handshake timed out after %s", p.config.StartupTimeout)
	}
}

// Client returns the protocol client.
func (p *WorkerProcess) Client() *Client {
	return p.client
}

// PID returns the worker's process ID.
func (p *WorkerProcess) PID() int {
	return p.cmd.Process.Pid
}

// Close ends the session by closing the worker's stdin and waits for the
// process to exit.
func (p *WorkerProcess) Close() (*ExitResult, error) {
	if p.client != nil {
		_ = p.client.Close()
	}
	return p.Wait()
}

// Wait waits for the worker to exit and its diagnostics to drain.
func (p *WorkerProcess) Wait() (*ExitResult, error) {
	if p.cmd == nil {
		return nil, errors.New("worker not started")
	}

	// Stderr must be drained before cmd.Wait closes the pipe.
	if err := <-p.stderrErr; err != nil {
		p.logger.Warn("failed to forward worker diagnostics", map[string]any{"error": err.Error()})
	}

	err := p.cmd.Wait()
	result := &ExitResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("worker wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	result.Reason = DescribeExit(result.ExitCode)

	if result.ExitCode != ExitCodeClean {
		p.config.Collector.IncWorkerCrash()
		p.logger.Error("worker exited abnormally", map[string]any{
			"exit_code": result.ExitCode,
			"reason":    result.Reason,
		})
	}
	return result, nil
}

// Kill terminates the worker process.
func (p *WorkerProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
