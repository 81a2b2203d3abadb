// Package reader provides the read-side data access layer for the ganhost CLI.
//
// Read-only commands (inspect-pca, notes, stats) go through this package and
// never touch the worker protocol.
package reader

// ArchiveSummary describes a PCA archive.
type ArchiveSummary struct {
	Path       string `json:"path"`
	Version    int    `json:"version"`
	Scheme     string `json:"scheme"`
	Layer      string `json:"layer"`
	Components int    `json:"components"`
	CompShape  []int  `json:"comp_shape"`
	// TotalVariance is the sum of squared standard deviations.
	TotalVariance float64 `json:"total_variance"`
	// ZMeanNorm is set for latent archives only.
	ZMeanNorm *float64      `json:"z_mean_norm,omitempty"`
	Rows      []ComponentRow `json:"rows"`
}

// ComponentRow describes one principal component.
type ComponentRow struct {
	Index  int     `json:"index"`
	StdDev float64 `json:"stdev"`
	// Share is the component's fraction of the total variance.
	Share float64 `json:"share"`
	// DirectionNorm is the norm of the latent direction (latent archives only).
	DirectionNorm *float64 `json:"direction_norm,omitempty"`
}

// Archive schemes.
const (
	SchemeLegacy = "legacy"
	SchemeLatent = "latent"
)

// ProbeResponse reports a worker handshake.
type ProbeResponse struct {
	Command     string  `json:"command"`
	PID         int     `json:"pid"`
	AudioLength uint32  `json:"audio_length"`
	SampleRate  uint32  `json:"sample_rate"`
	NoteSeconds float64 `json:"note_seconds"`
	HandshakeMs int64   `json:"handshake_ms"`
	// Components is set when an archive was loaded during the probe.
	Components *int     `json:"components,omitempty"`
	ZMeanNorm  *float64 `json:"z_mean_norm,omitempty"`
	ExitCode   int      `json:"exit_code"`
}

// NoteItem is one captured note record.
type NoteItem struct {
	Seq        int     `json:"seq"`
	Pitch      int32   `json:"pitch"`
	Status     string  `json:"status"`
	File       string  `json:"file"`
	SizeBytes  int64   `json:"size_bytes"`
	Samples    int     `json:"samples"`
	SampleRate uint32  `json:"sample_rate"`
	ZNorm      float64 `json:"z_norm"`
	Ts         string  `json:"ts"`
}

// NoteStats aggregates the notes of one render session.
type NoteStats struct {
	Session          string  `json:"session"`
	Checkpoint       string  `json:"checkpoint"`
	Total            int     `json:"total"`
	OK               int     `json:"ok"`
	PitchUnsupported int     `json:"pitch_unsupported"`
	Failed           int     `json:"failed"`
	Pitches          int     `json:"pitches"`
	Bytes            int64   `json:"bytes"`
	AudioSeconds     float64 `json:"audio_seconds"`
}
