// Package types holds the value types shared by the worker, the host client and
// the wire codec.
package types

import "math"

// ZSize is the number of float64 values in a latent code.
const ZSize = 256

// Z is a latent code. Values are never mutated after construction; every
// operation producing a code returns a new one.
type Z [ZSize]float64

// ZFromSlice copies v into a latent code. Missing trailing values are zero and
// extra values are dropped.
func ZFromSlice(v []float64) Z {
	var z Z
	copy(z[:], v)
	return z
}

// Norm returns the euclidean norm of z.
func (z Z) Norm() float64 {
	var sum float64
	for _, v := range z {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product of z and o.
func (z Z) Dot(o Z) float64 {
	var sum float64
	for i := range z {
		sum += z[i] * o[i]
	}
	return sum
}

// Add returns z + o.
func (z Z) Add(o Z) Z {
	var out Z
	for i := range z {
		out[i] = z[i] + o[i]
	}
	return out
}

// Scale returns s * z.
func (z Z) Scale(s float64) Z {
	var out Z
	for i := range z {
		out[i] = z[i] * s
	}
	return out
}
