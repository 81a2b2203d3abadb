package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sopimagenta/ganworker/types"
)

// ConfigFile is the name of the model description inside a checkpoint
// directory.
const ConfigFile = "model.yaml"

// Config describes a checkpoint.
type Config struct {
	AudioLength uint32 `yaml:"audio_length"`
	SampleRate  uint32 `yaml:"sample_rate"`
	// PitchMin and PitchMax bound the trained MIDI pitches, inclusive.
	PitchMin int32 `yaml:"pitch_min"`
	PitchMax int32 `yaml:"pitch_max"`
	// ZSize must match the protocol's latent size when set.
	ZSize int `yaml:"z_size"`
	// Seed seeds the prior sampler.
	Seed uint64 `yaml:"seed"`
	// Harmonics is the number of partials per note.
	Harmonics int `yaml:"harmonics"`
}

// DefaultConfig matches the published NSynth-trained checkpoints: four
// seconds at 16 kHz over MIDI pitches 24 to 84.
func DefaultConfig() Config {
	return Config{
		AudioLength: 64000,
		SampleRate:  16000,
		PitchMin:    24,
		PitchMax:    84,
		ZSize:       types.ZSize,
		Seed:        1,
		Harmonics:   16,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.AudioLength == 0 {
		errs = append(errs, errors.New("audio_length must be positive"))
	}
	if c.SampleRate == 0 {
		errs = append(errs, errors.New("sample_rate must be positive"))
	}
	if c.PitchMin > c.PitchMax {
		errs = append(errs, fmt.Errorf("pitch_min %d exceeds pitch_max %d", c.PitchMin, c.PitchMax))
	}
	if c.ZSize != types.ZSize {
		errs = append(errs, fmt.Errorf("z_size %d does not match protocol latent size %d", c.ZSize, types.ZSize))
	}
	if c.Harmonics <= 0 {
		errs = append(errs, errors.New("harmonics must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads ConfigFile from a checkpoint directory. Fields absent from
// the file keep their DefaultConfig values.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	info, err := os.Stat(dir)
	if err != nil {
		return cfg, fmt.Errorf("checkpoint directory: %w", err)
	}
	if !info.IsDir() {
		return cfg, fmt.Errorf("checkpoint %q is not a directory", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return cfg, fmt.Errorf("failed to read model config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse model config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid model config: %w", err)
	}
	return cfg, nil
}
