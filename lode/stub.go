package lode

import (
	"context"
	"sync"
)

// StubFile is a sidecar recorded by StubClient.
type StubFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// StubClient keeps captured records in memory. Tests inspect its exported
// fields after a render.
type StubClient struct {
	mu        sync.Mutex
	Notes     []Note
	Summaries []Summary
	Files     []StubFile
	Closed    bool
	// Err, when set, fails every write.
	Err error
}

// NewStubClient returns an empty StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

func (c *StubClient) record(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	fn()
	return nil
}

// WriteNotes implements Client.
func (c *StubClient) WriteNotes(_ context.Context, notes []Note) error {
	return c.record(func() { c.Notes = append(c.Notes, notes...) })
}

// WriteSummary implements Client.
func (c *StubClient) WriteSummary(_ context.Context, summary Summary) error {
	return c.record(func() { c.Summaries = append(c.Summaries, summary) })
}

// PutFile implements Client.
func (c *StubClient) PutFile(_ context.Context, name, contentType string, data []byte) error {
	return c.record(func() {
		c.Files = append(c.Files, StubFile{Name: name, ContentType: contentType, Data: data})
	})
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
