package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/config"
)

// loadConfig loads --config when given. A missing flag yields nil so that
// configVal falls through to flag defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// configVal reads a field from cfg, returning the zero value for a nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// resolveString returns the CLI value when set, then the config value when
// non-empty, then the flag default.
func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if configValue != "" {
		return configValue
	}
	return c.String(name)
}

// resolveInt applies the same precedence to int flags. Zero config values
// fall through to the flag default.
func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Int(name)
}

// resolveFloat64 applies the same precedence to float flags.
func resolveFloat64(c *cli.Context, name string, configValue float64) float64 {
	if c.IsSet(name) {
		return c.Float64(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Float64(name)
}

// resolveBool returns the CLI value when set, otherwise true if either the
// config or the flag default is true.
func resolveBool(c *cli.Context, name string, configValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return configValue || c.Bool(name)
}

// resolveDuration applies the same precedence to duration flags.
func resolveDuration(c *cli.Context, name string, configValue time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Duration(name)
}
