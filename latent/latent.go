// Package latent implements the latent-space algebra: spherical interpolation
// between codes and the two PCA edit schemes.
package latent

import (
	"math"

	"github.com/sopimagenta/ganworker/pca"
	"github.com/sopimagenta/ganworker/types"
)

// parallelEpsilon bounds sin(omega) below which slerp degenerates to lerp.
const parallelEpsilon = 1e-6

// Slerp interpolates along the great circle from a to b. t=0 yields a and t=1
// yields b; other values of t extrapolate along the same arc. Codes that are
// parallel, antiparallel or zero fall back to linear interpolation.
func Slerp(a, b types.Z, t float64) types.Z {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return Lerp(a, b, t)
	}

	cos := a.Dot(b) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	omega := math.Acos(cos)
	so := math.Sin(omega)
	if math.Abs(so) < parallelEpsilon {
		return Lerp(a, b, t)
	}

	wa := math.Sin((1-t)*omega) / so
	wb := math.Sin(t*omega) / so
	return a.Scale(wa).Add(b.Scale(wb))
}

// Lerp interpolates linearly from a to b.
func Lerp(a, b types.Z, t float64) types.Z {
	return a.Scale(1 - t).Add(b.Scale(t))
}

// fit truncates or zero-pads v to n values.
func fit(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}

// EditZ adds the weighted sum of the archive's latent directions to z. Extra
// edits are ignored and missing edits count as zero.
func EditZ(a *pca.Latent, z types.Z, edits []float64) types.Z {
	w := fit(edits, a.ComponentCount())
	out := z
	for i, e := range w {
		if e == 0 {
			continue
		}
		row := a.ZComp.Row(i)
		for j := range out {
			out[j] += e * row[j]
		}
	}
	return out
}

// FromEdits returns the archive's mean code moved along its directions.
func FromEdits(a *pca.Latent, edits []float64) types.Z {
	return EditZ(a, a.ZMean, edits)
}

// MeanZ returns the archive's mean code. Archives without latent components
// report false.
func MeanZ(a pca.Archive) (types.Z, bool) {
	l, ok := a.(*pca.Latent)
	if !ok {
		return types.Z{}, false
	}
	return l.ZMean, true
}

// PadEdits zero-pads every row to the longest row's length, producing a
// rectangular matrix. Input rows are not modified.
func PadEdits(rows [][]float64) [][]float64 {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = fit(r, width)
	}
	return out
}
