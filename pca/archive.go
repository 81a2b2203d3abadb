// Package pca holds principal-component archives used to edit synthesis.
//
// An archive is resolved once at load time into one of two variants: Legacy,
// whose components are offsets applied to a model layer's activations, and
// Latent, whose components are directions in latent space.
package pca

import (
	"errors"
	"fmt"
	"math"

	"github.com/sopimagenta/ganworker/types"
)

var (
	// ErrInvalidArchive indicates an archive whose fields are missing or
	// inconsistent with each other.
	ErrInvalidArchive = errors.New("invalid pca archive")

	// ErrUnsupportedVersion indicates an operation requested against an archive
	// of the wrong schema version.
	ErrUnsupportedVersion = errors.New("unsupported pca archive version")
)

// LatentVersion is the first archive version using the latent-space scheme.
const LatentVersion = 2

// Tensor is a dense row-major float64 tensor.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

// Size returns the number of elements implied by the shape.
// A tensor with no dimensions is a scalar of size 1.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// RowShape returns the shape of one slice along the leading dimension.
func (t Tensor) RowShape() []int {
	if len(t.Shape) == 0 {
		return nil
	}
	return append([]int(nil), t.Shape[1:]...)
}

// RowSize returns the number of elements in one slice along the leading
// dimension.
func (t Tensor) RowSize() int {
	n := 1
	for _, d := range t.RowShape() {
		n *= d
	}
	return n
}

// Row returns the i-th slice along the leading dimension. The returned slice
// aliases the tensor data.
func (t Tensor) Row(i int) []float64 {
	n := t.RowSize()
	return t.Data[i*n : (i+1)*n]
}

func (t Tensor) validate(field string) error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("%w: %s has no shape", ErrInvalidArchive, field)
	}
	// Size and RowSize are products of subsets of the dimensions; bounding
	// the product of every non-zero dimension keeps both from overflowing.
	span := 1
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: %s has negative dimension in shape %v", ErrInvalidArchive, field, t.Shape)
		}
		if d == 0 {
			continue
		}
		if span > math.MaxInt/d {
			return fmt.Errorf("%w: %s shape %v is too large", ErrInvalidArchive, field, t.Shape)
		}
		span *= d
	}
	if got, want := len(t.Data), t.Size(); got != want {
		return fmt.Errorf("%w: %s has %d values, shape %v needs %d", ErrInvalidArchive, field, got, t.Shape, want)
	}
	return nil
}

// Archive is a loaded PCA archive. The concrete type is either *Legacy or
// *Latent.
type Archive interface {
	// ComponentCount returns the number of principal components.
	ComponentCount() int
	// Version returns the schema version the archive was resolved to.
	Version() int
	// Base returns the fields shared by both schemes.
	Base() *Components

	sealed()
}

// Components are the fields every archive carries.
type Components struct {
	// Comp is indexed by component first, then the layer's feature dims.
	Comp Tensor
	// StdDev has one scalar per component.
	StdDev []float64
	// Layer names the model layer the legacy offsets apply to.
	Layer string
}

// ComponentCount returns the number of principal components.
func (c *Components) ComponentCount() int { return len(c.StdDev) }

// Base returns c.
func (c *Components) Base() *Components { return c }

func (c *Components) validate() error {
	if err := c.Comp.validate("comp"); err != nil {
		return err
	}
	if c.Comp.Shape[0] != len(c.StdDev) {
		return fmt.Errorf("%w: comp has %d components but stdev has %d values",
			ErrInvalidArchive, c.Comp.Shape[0], len(c.StdDev))
	}
	return nil
}

// Legacy is an archive of layer-offset components (version absent or 1).
type Legacy struct {
	Components
}

// Version returns 1.
func (*Legacy) Version() int { return 1 }

func (*Legacy) sealed() {}

// Latent is an archive of latent-space components (version 2 and later).
type Latent struct {
	Components

	// ZComp holds one latent direction per component, shape [K, ZSize].
	ZComp Tensor
	// ZMean is the mean latent code of the decomposition.
	ZMean types.Z

	version int
}

// Version returns the archive's declared version.
func (l *Latent) Version() int { return l.version }

func (*Latent) sealed() {}

// Direction returns the latent direction of component i.
func (l *Latent) Direction(i int) types.Z {
	return types.ZFromSlice(l.ZComp.Row(i))
}

// NewLegacy builds and validates a legacy archive.
func NewLegacy(c Components) (*Legacy, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &Legacy{Components: c}, nil
}

// NewLatent builds and validates a latent archive. zComp may carry any shape
// whose leading dimension is the component count and whose remaining
// dimensions hold ZSize values; it is normalized to [K, ZSize]. zMean must
// hold exactly ZSize values.
func NewLatent(c Components, version int, zComp, zMean Tensor) (*Latent, error) {
	if version < LatentVersion {
		return nil, fmt.Errorf("%w: latent archive requires version >= %d, got %d",
			ErrInvalidArchive, LatentVersion, version)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := zComp.validate("z_comp"); err != nil {
		return nil, err
	}
	k := c.ComponentCount()
	if zComp.Shape[0] != k {
		return nil, fmt.Errorf("%w: z_comp has %d components, expected %d",
			ErrInvalidArchive, zComp.Shape[0], k)
	}
	if zComp.RowSize() != types.ZSize {
		return nil, fmt.Errorf("%w: z_comp rows hold %d values, expected %d",
			ErrInvalidArchive, zComp.RowSize(), types.ZSize)
	}
	if err := zMean.validate("z_mean"); err != nil {
		return nil, err
	}
	if zMean.Size() != types.ZSize {
		return nil, fmt.Errorf("%w: z_mean holds %d values, expected %d",
			ErrInvalidArchive, zMean.Size(), types.ZSize)
	}

	return &Latent{
		Components: c,
		ZComp:      Tensor{Shape: []int{k, types.ZSize}, Data: zComp.Data},
		ZMean:      types.ZFromSlice(zMean.Data),
		version:    version,
	}, nil
}

// AsLatent returns the archive as *Latent, or ErrUnsupportedVersion.
func AsLatent(a Archive) (*Latent, error) {
	if l, ok := a.(*Latent); ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: version %d has no latent components", ErrUnsupportedVersion, a.Version())
}
