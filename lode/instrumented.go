package lode

import (
	"context"

	"github.com/sopimagenta/ganworker/metrics"
)

// InstrumentedClient wraps a Client and counts capture writes on a
// metrics collector. Each write increments capture_write_success or
// capture_write_failure.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteNotes delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteNotes(ctx context.Context, notes []Note) error {
	return c.record(c.inner.WriteNotes(ctx, notes))
}

// WriteSummary delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteSummary(ctx context.Context, summary Summary) error {
	return c.record(c.inner.WriteSummary(ctx, summary))
}

// PutFile delegates to the inner client and records success or failure.
func (c *InstrumentedClient) PutFile(ctx context.Context, filename, contentType string, data []byte) error {
	return c.record(c.inner.PutFile(ctx, filename, contentType, data))
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

func (c *InstrumentedClient) record(err error) error {
	if err != nil {
		c.collector.IncCaptureWriteFailure()
	} else {
		c.collector.IncCaptureWriteSuccess()
	}
	return err
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)
