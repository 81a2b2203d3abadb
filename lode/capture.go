// Package lode captures rendered notes into a Lode dataset.
//
// Each render session writes one JSONL record per note plus a summary record,
// Hive-partitioned by session, day and record kind. The WAV files themselves
// are stored as sidecar files next to the partition, outside the dataset's
// segment machinery.
package lode

import (
	"context"
	"errors"
	"time"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "notes"

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds capture partition configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Session is the partition key identifying one render invocation.
	Session string
	// Day is the partition key derived from the session start (YYYY-MM-DD UTC).
	Day string
	// Checkpoint is recorded on every record; it is not a partition key.
	Checkpoint string
}

// Validate checks that all partition keys are present.
func (c Config) Validate() error {
	var errs []error
	if c.Dataset == "" {
		errs = append(errs, errors.New("capture dataset is required"))
	}
	if c.Session == "" {
		errs = append(errs, errors.New("capture session is required"))
	}
	if c.Day == "" {
		errs = append(errs, errors.New("capture day is required"))
	}
	return errors.Join(errs...)
}

// Client abstracts render capture storage.
type Client interface {
	// WriteNotes writes one record per note, preserving order.
	WriteNotes(ctx context.Context, notes []Note) error

	// WriteSummary writes the session summary record.
	WriteSummary(ctx context.Context, summary Summary) error

	SidecarWriter

	// Close releases client resources.
	Close() error
}
