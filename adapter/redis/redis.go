// Package redis publishes render completion events on a Redis pub/sub
// channel. Events may also be kept in a capped list for consumers that were
// not subscribed when the render finished.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sopimagenta/ganworker/adapter"
)

const (
	// DefaultChannel is the pub/sub channel used when none is configured.
	DefaultChannel = "ganworker:render_completed"
	// DefaultTimeout bounds one publish attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3
)

// Payload encodings.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL     string
	Channel string
	// Encoding is json (default) or msgpack. Msgpack payloads use the JSON
	// field names.
	Encoding string
	// History, when positive, also pushes each event onto the list
	// "<channel>:history" trimmed to that many entries.
	History int64
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter publishes events with PUBLISH, optionally in a MULTI block with
// the history list update.
type Adapter struct {
	client  *goredis.Client
	channel string
	history int64
	timeout time.Duration
	retries int
	backoff time.Duration
	encode  func(*adapter.RenderCompletedEvent) ([]byte, error)
}

// New validates cfg and returns an adapter. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.History < 0 {
		return nil, fmt.Errorf("history must be >= 0, got %d", cfg.History)
	}
	encode, err := encoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		client:  goredis.NewClient(opts),
		channel: cfg.Channel,
		history: cfg.History,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		encode:  encode,
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

func encoder(name string) (func(*adapter.RenderCompletedEvent) ([]byte, error), error) {
	switch name {
	case "", EncodingJSON:
		return func(e *adapter.RenderCompletedEvent) ([]byte, error) { return json.Marshal(e) }, nil
	case EncodingMsgpack:
		return func(e *adapter.RenderCompletedEvent) ([]byte, error) {
			var buf bytes.Buffer
			enc := msgpack.NewEncoder(&buf)
			enc.SetCustomStructTag("json")
			if err := enc.Encode(e); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}, nil
	}
	return nil, fmt.Errorf("redis adapter: unknown encoding %q (must be json or msgpack)", name)
}

// Channel returns the pub/sub channel events are published on.
func (a *Adapter) Channel() string { return a.channel }

// HistoryKey returns the list key used when History is enabled.
func (a *Adapter) HistoryKey() string { return a.channel + ":history" }

// Publish encodes the event and publishes it, retrying on failure.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RenderCompletedEvent) error {
	payload, err := a.encode(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	return adapter.Retry(ctx, "redis", a.retries, a.backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.send(ctx, payload)
	})
}

func (a *Adapter) send(ctx context.Context, payload []byte) error {
	if a.history == 0 {
		return a.client.Publish(ctx, a.channel, payload).Err()
	}
	_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		key := a.HistoryKey()
		p.LPush(ctx, key, payload)
		p.LTrim(ctx, key, 0, a.history-1)
		p.Publish(ctx, a.channel, payload)
		return nil
	})
	return err
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
