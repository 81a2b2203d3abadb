package reader

import (
	"errors"
	"time"
)

// ParseNoteRecord converts a Lode record (map[string]any) to a NoteItem.
// Handles both native integers (direct writes) and float64 (JSON round-trips)
// for numeric fields.
func ParseNoteRecord(record map[string]any) (*NoteItem, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	item := &NoteItem{
		Seq:        int(toInt64(record["seq"])),
		Pitch:      int32(toInt64(record["pitch"])),
		Status:     toString(record["status"]),
		File:       toString(record["file"]),
		SizeBytes:  toInt64(record["size_bytes"]),
		Samples:    int(toInt64(record["samples"])),
		SampleRate: uint32(toInt64(record["sample_rate"])),
		ZNorm:      toFloat64(record["z_norm"]),
		Ts:         toString(record["ts"]),
	}

	// The write path always populates these; missing values indicate a
	// malformed record.
	if item.Status == "" {
		return nil, errors.New("note record missing required field: status")
	}
	if item.Ts == "" {
		return nil, errors.New("note record missing required field: ts")
	}
	if _, err := time.Parse(time.RFC3339Nano, item.Ts); err != nil {
		return nil, errors.New("note record has malformed ts: " + item.Ts)
	}
	if _, ok := record["seq"]; !ok {
		return nil, errors.New("note record missing required field: seq")
	}

	return item, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and native
// integers from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
