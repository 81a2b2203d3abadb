package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sopimagenta/ganworker/latent"
	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

// Options are the runtime knobs given on the worker command line.
type Options struct {
	// BatchSize is the number of notes synthesized per chunk.
	BatchSize int
	// MemoryFraction caps accelerator memory for models that use one.
	// Zero means the model's default.
	MemoryFraction float64
}

// Procedural is a deterministic additive synthesizer standing in for a
// trained network. The code shapes the harmonic spectrum and envelope, so
// nearby codes sound alike and interpolation is audible.
type Procedural struct {
	cfg  Config
	opts Options
	rng  *rand.Rand
}

// NewProcedural creates a procedural model from cfg.
func NewProcedural(cfg Config, opts Options) (*Procedural, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.MemoryFraction < 0 || opts.MemoryFraction > 1 {
		return nil, fmt.Errorf("memory fraction must be in [0, 1], got %v", opts.MemoryFraction)
	}
	return &Procedural{
		cfg:  cfg,
		opts: opts,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
	}, nil
}

// Open loads the checkpoint description in dir.
func Open(dir string, opts Options) (*Procedural, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	return NewProcedural(cfg, opts)
}

// Info implements Model.
func (p *Procedural) Info() types.AudioInfo {
	return types.AudioInfo{AudioLength: p.cfg.AudioLength, SampleRate: p.cfg.SampleRate}
}

// GenerateZ implements Model with standard normal samples.
func (p *Procedural) GenerateZ(_ context.Context, n int) ([]types.Z, error) {
	zs := make([]types.Z, n)
	for i := range zs {
		for j := range zs[i] {
			zs[i][j] = p.rng.NormFloat64()
		}
	}
	return zs, nil
}

// GenerateFromZ implements Model.
func (p *Procedural) GenerateFromZ(ctx context.Context, zs []types.Z, pitches []int32, offsets latent.Offsets) ([]types.Audio, error) {
	if len(zs) != len(pitches) {
		return nil, fmt.Errorf("%w: %d codes, %d pitches", ErrBatchMismatch, len(zs), len(pitches))
	}
	for _, pitch := range pitches {
		if pitch < p.cfg.PitchMin || pitch > p.cfg.PitchMax {
			return nil, &PitchError{Pitch: pitch}
		}
	}

	brightness := offsetBrightness(offsets)
	out := make([]types.Audio, 0, len(zs))
	for start := 0; start < len(zs); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+p.opts.BatchSize, len(zs))
		for i := start; i < end; i++ {
			out = append(out, p.render(zs[i], pitches[i], brightness))
		}
	}
	return out, nil
}

// GenerateFromEdits implements Model.
func (p *Procedural) GenerateFromEdits(ctx context.Context, pitches []int32, edits [][]float64, archive *pca.Latent) ([]types.Audio, error) {
	if len(edits) != len(pitches) {
		return nil, fmt.Errorf("%w: %d edit rows, %d pitches", ErrBatchMismatch, len(edits), len(pitches))
	}
	zs := make([]types.Z, len(edits))
	for i, row := range edits {
		zs[i] = latent.FromEdits(archive, row)
	}
	return p.GenerateFromZ(ctx, zs, pitches, nil)
}

// offsetBrightness reduces layer offsets to one spectral tilt shared by the
// batch. The first batch row is representative since rows are replicas.
func offsetBrightness(offsets latent.Offsets) float64 {
	var sum float64
	var n int
	for _, t := range offsets {
		if len(t.Shape) == 0 || t.Shape[0] == 0 {
			continue
		}
		for _, v := range t.Row(0) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Tanh(sum / float64(n))
}

func (p *Procedural) render(z types.Z, pitch int32, brightness float64) types.Audio {
	n := int(p.cfg.AudioLength)
	rate := float64(p.cfg.SampleRate)
	f0 := 440 * math.Pow(2, float64(pitch-69)/12)

	// Spectral tilt and envelope from the first few code dimensions.
	tilt := 0.6 + 0.4*math.Tanh(z[0]) - 0.3*brightness
	attack := 0.005 + 0.02*(1+math.Tanh(z[1]))
	decay := 0.5 + 1.5*(1+math.Tanh(z[2]))

	amps := make([]float64, p.cfg.Harmonics)
	for h := range amps {
		freq := f0 * float64(h+1)
		if freq >= rate/2 {
			break
		}
		a := math.Exp(-tilt * float64(h))
		a *= 1 + 0.25*math.Tanh(z[(h+3)%types.ZSize])
		amps[h] = a
	}

	buf := make([]float64, n)
	peak := 0.0
	for i := range buf {
		t := float64(i) / rate
		env := math.Min(1, t/attack) * math.Exp(-t/decay)
		var s float64
		for h, a := range amps {
			if a == 0 {
				continue
			}
			phase := 2 * math.Pi * f0 * float64(h+1) * t
			s += a * math.Sin(phase+z[(h+64)%types.ZSize])
		}
		s *= env
		buf[i] = s
		peak = max(peak, math.Abs(s))
	}

	gain := 0.0
	if peak > 0 {
		gain = 0.8 * math.MaxInt16 / peak
	}
	samples := make([]int16, n)
	for i, s := range buf {
		samples[i] = int16(math.Round(s * gain))
	}
	return types.Audio{Samples: samples}
}
