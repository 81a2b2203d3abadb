package lode

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoNotesFound is returned when a session has no note records.
var ErrNoNotesFound = errors.New("no note records found")

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return newDataset(dataset, factory)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := s3StoreFactory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// QueryNotes reads every note record of a session, ordered by seq.
// Returns ErrNoNotesFound if the session has none.
func QueryNotes(ctx context.Context, ds lode.Dataset, session string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "notes/snapshots")
	}

	var notes []map[string]any
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "record_kind", RecordKindNote) {
			continue
		}
		if !snapshotMatchesFilter(snap, "session", session) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("notes/snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindNote {
				continue
			}
			if session != "" && toString(record["session"]) != session {
				continue
			}
			// A record may appear in more than one snapshot.
			key := fmt.Sprintf("%s/%d", toString(record["session"]), toInt(record["seq"]))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			notes = append(notes, record)
		}
	}

	if len(notes) == 0 {
		return nil, ErrNoNotesFound
	}
	slices.SortStableFunc(notes, func(a, b map[string]any) int {
		return toInt(a["seq"]) - toInt(b["seq"])
	})
	return notes, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so session=s-1 does not match session=s-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	return slices.Contains(strings.Split(path, "/"), segment)
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt converts a decoded JSON number to int.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
