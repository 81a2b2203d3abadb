package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sopimagenta/ganworker/adapter"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/lode"
	"github.com/sopimagenta/ganworker/log"
	"github.com/sopimagenta/ganworker/metrics"
	"github.com/sopimagenta/ganworker/types"
)

// DefaultRenderBatch is the number of notes requested per synthesis call.
const DefaultRenderBatch = 8

// RenderConfig configures a batch render.
type RenderConfig struct {
	// Pitches are rendered for every latent code (or edit vector).
	Pitches []int32
	// Count is the number of random codes to draw.
	Count int
	// SlerpSteps inserts that many interpolated codes between consecutive
	// random codes.
	SlerpSteps int
	// Components is an optional PCA archive path loaded before rendering.
	Components string
	// Amplitudes, if set, are applied after loading Components.
	Amplitudes []float64
	// Edits, if set, replaces random codes: one note per edit vector and
	// pitch is synthesized from the archive's latent directions.
	Edits [][]float64
	// BatchSize bounds the items per synthesis request.
	BatchSize int
	// OutputDir receives one WAV file per rendered note (required).
	OutputDir string

	// Capture, if set, receives note records and WAV sidecar files.
	Capture lode.Client
	// StoragePath is reported in the completion event.
	StoragePath string
	// Adapter, if set, is notified when the render finishes.
	Adapter adapter.Adapter

	Session    string
	Checkpoint string

	Logger    *log.Logger
	Collector *metrics.Collector
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// RenderResult summarizes a completed render.
type RenderResult struct {
	Notes    []lode.Note
	Failed   int
	Outcome  string
	Duration time.Duration
	Event    *adapter.RenderCompletedEvent
}

// renderItem is one note to synthesize.
type renderItem struct {
	pitch int32
	z     types.Z
	edits []float64
}

// Render draws codes (or uses edit vectors), synthesizes every pitch for
// each of them in batches, writes WAV files and reports the result to the
// optional capture and adapter.
//
// Notes that fail (untrained pitch, failed batch) are recorded and counted;
// they do not abort the render. Protocol and transport errors do.
func Render(ctx context.Context, client *Client, cfg RenderConfig) (*RenderResult, error) {
	if err := validateRender(&cfg); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Session != "" {
		logger = logger.With(map[string]any{"session": cfg.Session})
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if cfg.Components != "" {
		count, err := client.LoadComponents(ctx, cfg.Components)
		if err != nil {
			return nil, fmt.Errorf("load components %s: %w", cfg.Components, err)
		}
		logger.Info("loaded PCA components", map[string]any{"path": cfg.Components, "count": count})
		if cfg.Amplitudes != nil {
			if err := client.SetAmplitudes(ctx, cfg.Amplitudes); err != nil {
				return nil, fmt.Errorf("set amplitudes: %w", err)
			}
		}
	}

	items, err := planItems(ctx, client, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("rendering notes", map[string]any{"notes": len(items), "batch_size": cfg.BatchSize})

	info := client.Info()
	result := &RenderResult{}
	for start := 0; start < len(items); start += cfg.BatchSize {
		chunk := items[start:min(start+cfg.BatchSize, len(items))]
		audios, err := synthesizeChunk(ctx, client, chunk, cfg.Edits != nil)
		if err != nil {
			return nil, err
		}
		for i, item := range chunk {
			note, err := writeNote(ctx, cfg, info, start+i, item, audios[i], now)
			if err != nil {
				return nil, err
			}
			if note.Status != types.ItemOK.String() {
				result.Failed++
			}
			result.Notes = append(result.Notes, note)
		}
	}

	completed := now()
	result.Duration = completed.Sub(started)
	result.Outcome = outcomeOf(len(result.Notes), result.Failed)

	if cfg.Capture != nil {
		if err := cfg.Capture.WriteNotes(ctx, result.Notes); err != nil {
			return nil, fmt.Errorf("capture notes: %w", err)
		}
		summary := lode.Summary{
			Notes:       len(result.Notes),
			Failed:      result.Failed,
			BytesTotal:  totalBytes(result.Notes),
			StartedAt:   started,
			CompletedAt: completed,
		}
		if err := cfg.Capture.WriteSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("capture summary: %w", err)
		}
	}

	result.Event = &adapter.RenderCompletedEvent{
		Version:     types.Version,
		EventType:   adapter.EventTypeRenderCompleted,
		Session:     cfg.Session,
		Checkpoint:  cfg.Checkpoint,
		Day:         lode.DeriveDay(started),
		Outcome:     result.Outcome,
		OutputDir:   cfg.OutputDir,
		StoragePath: cfg.StoragePath,
		Timestamp:   completed.UTC().Format(time.RFC3339),
		Notes:       len(result.Notes),
		Failed:      result.Failed,
		SampleRate:  info.SampleRate,
		AudioLength: info.AudioLength,
		DurationMs:  result.Duration.Milliseconds(),
	}
	if cfg.Adapter != nil {
		if err := cfg.Adapter.Publish(ctx, result.Event); err != nil {
			cfg.Collector.IncNotifyFailure()
			logger.Warn("failed to publish render event", map[string]any{"error": err.Error()})
		}
	}

	logger.Info("render finished", map[string]any{
		"notes":   len(result.Notes),
		"failed":  result.Failed,
		"outcome": result.Outcome,
	})
	return result, nil
}

func validateRender(cfg *RenderConfig) error {
	if len(cfg.Pitches) == 0 {
		return errors.New("at least one pitch is required")
	}
	if cfg.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if cfg.Edits == nil && cfg.Count <= 0 {
		return fmt.Errorf("code count must be positive, got %d", cfg.Count)
	}
	if cfg.SlerpSteps < 0 {
		return fmt.Errorf("slerp steps must not be negative, got %d", cfg.SlerpSteps)
	}
	if cfg.Edits != nil && cfg.Components == "" {
		return errors.New("edit vectors require a components archive")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRenderBatch
	}
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	return nil
}

// planItems expands codes (or edit vectors) and pitches into render items,
// code-major.
func planItems(ctx context.Context, client *Client, cfg RenderConfig) ([]renderItem, error) {
	var items []renderItem
	if cfg.Edits != nil {
		for _, edits := range cfg.Edits {
			for _, p := range cfg.Pitches {
				items = append(items, renderItem{pitch: p, edits: edits})
			}
		}
		return items, nil
	}

	zs, err := client.RandZ(ctx, cfg.Count)
	if err != nil {
		return nil, fmt.Errorf("draw codes: %w", err)
	}
	path, err := interpolate(ctx, client, zs, cfg.SlerpSteps)
	if err != nil {
		return nil, err
	}
	for _, z := range path {
		for _, p := range cfg.Pitches {
			items = append(items, renderItem{pitch: p, z: z})
		}
	}
	return items, nil
}

// interpolate inserts steps slerped codes between each consecutive pair.
func interpolate(ctx context.Context, client *Client, zs []types.Z, steps int) ([]types.Z, error) {
	if steps == 0 || len(zs) < 2 {
		return zs, nil
	}
	path := make([]types.Z, 0, len(zs)+(len(zs)-1)*steps)
	for i := range len(zs) - 1 {
		path = append(path, zs[i])
		for k := 1; k <= steps; k++ {
			amount := float64(k) / float64(steps+1)
			z, err := client.SlerpZ(ctx, zs[i], zs[i+1], amount)
			if err != nil {
				return nil, fmt.Errorf("slerp: %w", err)
			}
			path = append(path, z)
		}
	}
	return append(path, zs[len(zs)-1]), nil
}

// synthesizeChunk requests one batch. A failed batch yields failed items
// rather than an error.
func synthesizeChunk(ctx context.Context, client *Client, chunk []renderItem, fromEdits bool) ([]types.AudioItem, error) {
	var audios []types.AudioItem
	var err error
	if fromEdits {
		req := make([]ipc.EditItem, len(chunk))
		for i, it := range chunk {
			req[i] = ipc.EditItem{Pitch: it.pitch, Edits: it.edits}
		}
		audios, err = client.SynthesizeNoZ(ctx, req)
	} else {
		req := make([]ipc.GenAudioItem, len(chunk))
		for i, it := range chunk {
			req[i] = ipc.GenAudioItem{Pitch: it.pitch, Z: it.z}
		}
		audios, err = client.GenAudio(ctx, req)
	}

	if errors.Is(err, ErrBatchFailed) {
		audios = make([]types.AudioItem, len(chunk))
		for i := range audios {
			audios[i].Status = types.ItemFailed
		}
		return audios, nil
	}
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audios, nil
}

// writeNote writes a successful note's WAV file and captures it.
func writeNote(ctx context.Context, cfg RenderConfig, info types.AudioInfo, seq int, item renderItem, audio types.AudioItem, now func() time.Time) (lode.Note, error) {
	note := lode.Note{
		Seq:        seq,
		Pitch:      item.pitch,
		Status:     audio.Status.String(),
		SampleRate: info.SampleRate,
		Edits:      item.edits,
		Ts:         now(),
	}
	if item.edits == nil {
		note.ZNorm = item.z.Norm()
	}
	if audio.Status != types.ItemOK {
		return note, nil
	}

	name := fmt.Sprintf("n%04d-p%d.wav", seq, item.pitch)
	path := filepath.Join(cfg.OutputDir, name)
	size, err := WriteWAV(path, audio.Audio, info.SampleRate)
	if err != nil {
		return note, err
	}
	note.File = name
	note.SizeBytes = size
	note.Samples = len(audio.Audio.Samples)

	if cfg.Capture != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return note, fmt.Errorf("read back %s: %w", name, err)
		}
		if err := cfg.Capture.PutFile(ctx, name, wavContentType, data); err != nil {
			return note, fmt.Errorf("capture %s: %w", name, err)
		}
	}
	return note, nil
}

func outcomeOf(notes, failed int) string {
	switch {
	case failed == 0:
		return adapter.OutcomeSuccess
	case failed < notes:
		return adapter.OutcomePartial
	default:
		return adapter.OutcomeFailed
	}
}

func totalBytes(notes []lode.Note) int64 {
	var n int64
	for _, note := range notes {
		n += note.SizeBytes
	}
	return n
}
