package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dynamics computes the state derivative ẋ = f(x, u).
type Dynamics func(x, u *mat.VecDense) *mat.VecDense

// Measurement computes the output y = h(x, u).
type Measurement func(x, u *mat.VecDense) *mat.VecDense

// ResidualFunc computes a - b in the vector's own space, e.g. with angle wrapping.
type ResidualFunc func(a, b *mat.VecDense) *mat.VecDense

// AddFunc computes a + b in the vector's own space.
type AddFunc func(a, b *mat.VecDense) *mat.VecDense

// MeanFunc computes the weighted mean of the columns of sigmas.
type MeanFunc func(sigmas *mat.Dense, wm *mat.VecDense) *mat.VecDense

func Vec(vals ...float64) *mat.VecDense {
	data := make([]float64, len(vals))
	copy(data, vals)
	return mat.NewVecDense(len(data), data)
}

func Zeros(n int) *mat.VecDense {
	return mat.NewVecDense(n, nil)
}

func CloneVec(v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

func Subtract(a, b *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(a.Len(), nil)
	out.SubVec(a, b)
	return out
}

func Add(a, b *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(a.Len(), nil)
	out.AddVec(a, b)
	return out
}

func WeightedMean(sigmas *mat.Dense, wm *mat.VecDense) *mat.VecDense {
	r, _ := sigmas.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(sigmas, wm)
	return out
}

// IsValid reports whether every element of v is finite.
func IsValid(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func RawCopy(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
