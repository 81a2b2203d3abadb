package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/types"
)

// RenderReport is the structured JSON report written by --report.
type RenderReport struct {
	Session     string `json:"session"`
	Checkpoint  string `json:"checkpoint"`
	Outcome     string `json:"outcome"`
	ExitCode    int    `json:"exit_code"`
	DurationMs  int64  `json:"duration_ms"`
	OutputDir   string `json:"output_dir"`
	StoragePath string `json:"storage_path,omitempty"`

	Audio   *ReportAudio      `json:"audio"`
	Notes   *ReportNotes      `json:"notes"`
	Metrics *metrics.Snapshot `json:"metrics"`

	Worker *ExitResult `json:"worker,omitempty"`
}

// ReportAudio is the audio format announced by the worker.
type ReportAudio struct {
	SampleRate  uint32 `json:"sample_rate"`
	AudioLength uint32 `json:"audio_length"`
}

// ReportNotes holds per-status note counts.
type ReportNotes struct {
	Total    int            `json:"total"`
	Failed   int            `json:"failed"`
	ByStatus map[string]int `json:"by_status"`
	Bytes    int64          `json:"bytes"`
}

// BuildRenderReport composes a RenderReport from a render result and metrics
// snapshot. exitCode is the code the host will return; worker may be nil if
// the worker has not exited yet.
func BuildRenderReport(result *RenderResult, snap metrics.Snapshot, exitCode int, worker *ExitResult) *RenderReport {
	report := &RenderReport{
		Outcome:    result.Outcome,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Notes:      summarizeNotes(result.Notes),
		Metrics:    &snap,
		Worker:     worker,
	}
	if ev := result.Event; ev != nil {
		report.Session = ev.Session
		report.Checkpoint = ev.Checkpoint
		report.OutputDir = ev.OutputDir
		report.StoragePath = ev.StoragePath
		report.Audio = &ReportAudio{SampleRate: ev.SampleRate, AudioLength: ev.AudioLength}
	}
	return report
}

func summarizeNotes(notes []lode.Note) *ReportNotes {
	out := &ReportNotes{Total: len(notes), ByStatus: make(map[string]int)}
	for _, n := range notes {
		out.ByStatus[n.Status]++
		out.Bytes += n.SizeBytes
		if n.Status != types.ItemOK.String() {
			out.Failed++
		}
	}
	return out
}

// WriteRenderReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRenderReport(report *RenderReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRenderReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRenderReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRenderReportTo(report *RenderReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
