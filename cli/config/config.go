package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-shellwords"
)

// Config represents a ganworker.yaml configuration file shared by the worker
// and the host CLI. All values are optional; CLI flags always override them.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Worker    WorkerConfig    `yaml:"worker"`
	Storage   StorageConfig   `yaml:"storage"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ProtocolConfig bounds what the worker's decoder accepts.
type ProtocolConfig struct {
	MaxBatch uint32 `yaml:"max_batch"`
	MaxEdits uint32 `yaml:"max_edits"`
}

// SynthesisConfig holds worker synthesis behavior.
type SynthesisConfig struct {
	// PartialResults enables per-item status replies.
	PartialResults bool `yaml:"partial_results"`
	// BatchSize overrides the command-line batch size when set.
	BatchSize int `yaml:"batch_size"`
}

// ArchiveConfig configures the client used for s3:// archive paths.
type ArchiveConfig struct {
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// WorkerConfig tells the host how to launch the worker.
type WorkerConfig struct {
	// Command is the worker command line without its positional arguments,
	// e.g. "ganworker --config /etc/ganworker.yaml".
	Command        string   `yaml:"command"`
	Checkpoint     string   `yaml:"checkpoint"`
	BatchSize      int      `yaml:"batch_size"`
	MemoryFraction float64  `yaml:"memory_fraction"`
	StartupTimeout Duration `yaml:"startup_timeout"`
}

// StorageConfig holds render capture defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds render notification defaults.
type AdapterConfig struct {
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel,omitempty"`
	// Encoding is the redis payload encoding: json or msgpack.
	Encoding string            `yaml:"encoding,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultWorkerCommand is used when worker.command is unset.
const DefaultWorkerCommand = "ganworker"

// Argv returns the worker command line: the configured command split with
// shell quoting rules, followed by checkpoint, batch size and, when set, the
// memory fraction.
func (w WorkerConfig) Argv() ([]string, error) {
	command := w.Command
	if command == "" {
		command = DefaultWorkerCommand
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("invalid worker command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, errors.New("worker command is empty")
	}
	if w.Checkpoint == "" {
		return nil, errors.New("worker checkpoint is required")
	}
	if w.BatchSize <= 0 {
		return nil, fmt.Errorf("worker batch size must be positive, got %d", w.BatchSize)
	}

	args = append(args, w.Checkpoint, strconv.Itoa(w.BatchSize))
	if w.MemoryFraction > 0 {
		args = append(args, strconv.FormatFloat(w.MemoryFraction, 'f', -1, 64))
	}
	return args, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "", "fs", "s3", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs, s3 or memory, got %q", c.Storage.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type))
	}
	switch c.Adapter.Encoding {
	case "", "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("adapter.encoding must be json or msgpack, got %q", c.Adapter.Encoding))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must not be negative, got %d", *c.Adapter.Retries))
	}
	if c.Worker.MemoryFraction < 0 || c.Worker.MemoryFraction > 1 {
		errs = append(errs, fmt.Errorf("worker.memory_fraction must be in [0, 1], got %v", c.Worker.MemoryFraction))
	}
	if c.Synthesis.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("synthesis.batch_size must not be negative, got %d", c.Synthesis.BatchSize))
	}
	return errors.Join(errs...)
}
