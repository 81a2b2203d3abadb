package cmd

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/adapter"
	"github.com/sopimagenta/ganworker/adapter/redis"
	"github.com/sopimagenta/ganworker/adapter/webhook"
	"github.com/sopimagenta/ganworker/cli/config"
)

// adapterChoice holds resolved notification adapter configuration.
type adapterChoice struct {
	kind     string // "webhook", "redis" or "" (disabled)
	url      string
	channel  string
	encoding string
	headers  map[string]string
	timeout  time.Duration
	retries  int
	history  int64
}

// parseAdapterConfig merges adapter flags over the config file and
// validates the result. A nil choice means notifications are disabled.
func parseAdapterConfig(c *cli.Context, cfg *config.Config) (*adapterChoice, error) {
	ac := configVal(cfg, func(c *config.Config) config.AdapterConfig { return c.Adapter })

	kind := resolveString(c, "adapter", ac.Type)
	if kind == "" {
		return nil, nil
	}

	configRetries := 0
	if ac.Retries != nil {
		configRetries = *ac.Retries
	}
	choice := &adapterChoice{
		kind:     kind,
		url:      resolveString(c, "adapter-url", ac.URL),
		channel:  resolveString(c, "adapter-channel", ac.Channel),
		encoding: resolveString(c, "adapter-encoding", ac.Encoding),
		headers:  maps.Clone(ac.Headers),
		timeout:  resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries:  resolveInt(c, "adapter-retries", configRetries),
		history:  c.Int64("adapter-history"),
	}
	// An explicit zero in the config disables retries.
	if ac.Retries != nil && !c.IsSet("adapter-retries") {
		choice.retries = *ac.Retries
	}

	for _, h := range c.StringSlice("adapter-header") {
		key, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected Key=Value)", h)
		}
		if choice.headers == nil {
			choice.headers = make(map[string]string)
		}
		choice.headers[strings.TrimSpace(key)] = value
	}

	switch kind {
	case "webhook":
		if choice.url == "" {
			return nil, fmt.Errorf("--adapter-url is required for the webhook adapter")
		}
	case "redis":
		if choice.url == "" {
			return nil, fmt.Errorf("--adapter-url is required for the redis adapter (redis://host:port)")
		}
	default:
		return nil, fmt.Errorf("invalid --adapter %q (must be webhook or redis)", kind)
	}
	if choice.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must not be negative, got %d", choice.retries)
	}
	return choice, nil
}

// buildAdapter creates the adapter for a parsed choice.
func buildAdapter(choice *adapterChoice) (adapter.Adapter, error) {
	if choice == nil {
		return nil, nil
	}
	switch choice.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:      choice.url,
			Channel:  choice.channel,
			Encoding: choice.encoding,
			History:  choice.history,
			Timeout:  choice.timeout,
			Retries:  choice.retries,
		})
	default:
		return nil, fmt.Errorf("unsupported adapter %q", choice.kind)
	}
}
