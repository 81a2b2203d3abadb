package lode

import "time"

// RecordKind discriminator values.
const (
	RecordKindNote    = "note"
	RecordKindSummary = "summary"
)

// Note describes one rendered note.
type Note struct {
	// Seq is the note's position in the render, starting at 0.
	Seq   int
	Pitch int32
	// Status is the item status name ("ok", "pitch_unsupported", "failed").
	Status string
	// File is the sidecar WAV filename; empty when nothing was rendered.
	File       string
	SizeBytes  int64
	Samples    int
	SampleRate uint32
	// ZNorm is the Euclidean norm of the latent code the note came from.
	ZNorm float64
	// Edits holds the PCA edit amounts, if the note was synthesized from edits.
	Edits []float64
	Ts    time.Time
}

// Summary describes a completed render session.
type Summary struct {
	Notes       int
	Failed      int
	BytesTotal  int64
	StartedAt   time.Time
	CompletedAt time.Time
}

// toNoteRecordMap converts a Note to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toNoteRecordMap(n Note, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindNote,
		"seq":         n.Seq,
		"pitch":       n.Pitch,
		"status":      n.Status,
		"size_bytes":  n.SizeBytes,
		"samples":     n.Samples,
		"sample_rate": n.SampleRate,
		"z_norm":      n.ZNorm,
		"ts":          n.Ts.UTC().Format(time.RFC3339Nano),
		"checkpoint":  cfg.Checkpoint,
		"session":     cfg.Session,
		"day":         cfg.Day,
	}
	if n.File != "" {
		m["file"] = n.File
	}
	if len(n.Edits) > 0 {
		m["edits"] = n.Edits
	}
	return m
}

// toSummaryRecordMap converts a Summary to a map for Lode storage.
func toSummaryRecordMap(s Summary, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":  RecordKindSummary,
		"notes":        s.Notes,
		"failed":       s.Failed,
		"bytes_total":  s.BytesTotal,
		"duration_ms":  s.CompletedAt.Sub(s.StartedAt).Milliseconds(),
		"started_at":   s.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": s.CompletedAt.UTC().Format(time.RFC3339Nano),
		"checkpoint":   cfg.Checkpoint,
		"session":      cfg.Session,
		"day":          cfg.Day,
	}
}
