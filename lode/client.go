package lode

import (
	"context"
	"fmt"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"session", "day", "record_kind"}

// LodeClient is a Lode-backed implementation of Client.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	mu  sync.Mutex // serializes dataset writes
	seq int        // notes written so far
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteNotes writes a batch of note records in one snapshot.
func (c *LodeClient) WriteNotes(ctx context.Context, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]any, 0, len(notes))
	for _, n := range notes {
		records = append(records, toNoteRecordMap(n, c.config))
	}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindNote))
	}
	c.seq += len(notes)
	return nil
}

// WriteSummary writes the session summary record.
func (c *LodeClient) WriteSummary(ctx context.Context, summary Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := toSummaryRecordMap(summary, c.config)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindSummary))
	}
	return nil
}

// NotesWritten returns how many note records were written successfully.
func (c *LodeClient) NotesWritten() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (c *LodeClient) partitionPath(kind string) string {
	return fmt.Sprintf("%s/session=%s/day=%s/record_kind=%s", c.config.Dataset, c.config.Session, c.config.Day, kind)
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
