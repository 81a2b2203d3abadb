package types

// AudioInfo is the fixed payload of the init handshake.
type AudioInfo struct {
	// AudioLength is the number of samples per synthesized note.
	AudioLength uint32 `json:"audio_length" yaml:"audio_length"`
	// SampleRate is the sample rate in Hz.
	SampleRate uint32 `json:"sample_rate" yaml:"sample_rate"`
}

// Audio is one synthesized note: mono signed 16-bit PCM.
type Audio struct {
	Samples []int16
}

// ByteSize returns the encoded size of the samples in bytes.
func (a Audio) ByteSize() int {
	return len(a.Samples) * 2
}

// ItemStatus reports the outcome of one item of a synthesis batch.
type ItemStatus uint8

const (
	// ItemOK indicates the item was synthesized.
	ItemOK ItemStatus = iota
	// ItemPitchUnsupported indicates the model was not trained on the pitch.
	ItemPitchUnsupported
	// ItemFailed indicates any other synthesis failure.
	ItemFailed
)

// String returns the status name used in logs and CLI output.
func (s ItemStatus) String() string {
	switch s {
	case ItemOK:
		return "ok"
	case ItemPitchUnsupported:
		return "pitch_unsupported"
	case ItemFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AudioItem is one entry of a per-item synthesis result.
type AudioItem struct {
	Status ItemStatus
	Audio  Audio
}
