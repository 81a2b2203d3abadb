// Package adapter defines the notification boundary for completed renders.
//
// Adapters publish render completion events to downstream systems. The host
// owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeRenderCompleted is the event_type of every published event.
const EventTypeRenderCompleted = "render_completed"

// Render outcomes.
const (
	OutcomeSuccess = "success"
	// OutcomePartial means some notes failed (untrained pitch or model error).
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// RenderCompletedEvent is the payload published when a render finishes.
type RenderCompletedEvent struct {
	Version     string `json:"version"`
	EventType   string `json:"event_type"` // always "render_completed"
	Session     string `json:"session"`
	Checkpoint  string `json:"checkpoint"`
	Day         string `json:"day"`
	Outcome     string `json:"outcome"`
	OutputDir   string `json:"output_dir"`
	StoragePath string `json:"storage_path,omitempty"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	Notes       int    `json:"notes"`
	Failed      int    `json:"failed"`
	SampleRate  uint32 `json:"sample_rate"`
	AudioLength uint32 `json:"audio_length"`
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes render completion events to a downstream system.
type Adapter interface {
	// Publish sends a render completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RenderCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// DefaultBackoff is the delay before the first retry. It doubles on every
// subsequent retry.
const DefaultBackoff = 500 * time.Millisecond

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string {
	return e.Err.Error()
}

func (e *Permanent) Unwrap() error {
	return e.Err
}

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early on success, on a *Permanent error, or when
// ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, attempt func(context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff << uint(i-1)):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent *Permanent
		if errors.As(lastErr, &permanent) {
			return fmt.Errorf("%s: non-retriable error: %w", name, permanent.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
