package latent

import (
	"github.com/sopimagenta/ganworker/pca"
)

// Offsets maps a model layer name to the activation offset applied there.
// Each tensor's leading dimension is the model batch size.
type Offsets map[string]pca.Tensor

// CombinedOffset scales component i by amplitudes[i]*stdev[i] and sums the
// result over components. The returned tensor has the shape of one component.
// Missing amplitudes count as zero and extra amplitudes are ignored.
func CombinedOffset(a pca.Archive, amplitudes []float64) pca.Tensor {
	base := a.Base()
	k := base.ComponentCount()
	amps := fit(amplitudes, k)

	out := pca.Tensor{
		Shape: base.Comp.RowShape(),
		Data:  make([]float64, base.Comp.RowSize()),
	}
	for i := range k {
		amount := amps[i] * base.StdDev[i]
		if amount == 0 {
			continue
		}
		row := base.Comp.Row(i)
		for j, v := range row {
			out.Data[j] += amount * v
		}
	}
	return out
}

// LayerOffsets returns the combined offset for the archive's layer replicated
// across a batch of the given size.
func LayerOffsets(a pca.Archive, amplitudes []float64, batch int) Offsets {
	one := CombinedOffset(a, amplitudes)
	batch = max(batch, 1)

	data := make([]float64, 0, batch*len(one.Data))
	for range batch {
		data = append(data, one.Data...)
	}
	shape := append([]int{batch}, one.Shape...)
	return Offsets{a.Base().Layer: {Shape: shape, Data: data}}
}
