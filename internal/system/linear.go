package system

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// LinearSystem is the plant ẋ = Ax + Bu, y = Cx + Du with input bounds.
// It is immutable after construction; accessors return copies.
type LinearSystem struct {
	a, b, c, d *mat.Dense
	uMin, uMax []float64

	states, inputs, outputs int
}

// NewLinearSystem validates and copies the plant matrices. Nil bounds mean
// the input is unbounded on that side.
func NewLinearSystem(a, b, c, d *mat.Dense, uMin, uMax []float64) (*LinearSystem, error) {
	n, _ := a.Dims()
	_, m := b.Dims()
	p, _ := c.Dims()

	checks := []error{
		dynamo.CheckDims("A", a, n, n),
		dynamo.CheckDims("B", b, n, m),
		dynamo.CheckDims("C", c, p, n),
		dynamo.CheckDims("D", d, p, m),
	}
	for _, err := range checks {
		if err != nil {
			return nil, err
		}
	}
	for name, mtx := range map[string]*mat.Dense{"A": a, "B": b, "C": c, "D": d} {
		if dynamo.HasNaN(mtx) {
			return nil, errors.Wrapf(dynamo.ErrInvalidSystem, "%s contains NaN or Inf", name)
		}
	}

	lo, err := bounds(uMin, m, math.Inf(-1))
	if err != nil {
		return nil, err
	}
	hi, err := bounds(uMax, m, math.Inf(1))
	if err != nil {
		return nil, err
	}
	for i := range lo {
		if lo[i] > hi[i] {
			return nil, errors.Wrapf(dynamo.ErrInvalidSystem, "uMin[%d]=%g exceeds uMax[%d]=%g", i, lo[i], i, hi[i])
		}
	}

	return &LinearSystem{
		a:       mat.DenseCopyOf(a),
		b:       mat.DenseCopyOf(b),
		c:       mat.DenseCopyOf(c),
		d:       mat.DenseCopyOf(d),
		uMin:    lo,
		uMax:    hi,
		states:  n,
		inputs:  m,
		outputs: p,
	}, nil
}

func bounds(v []float64, m int, fill float64) ([]float64, error) {
	out := make([]float64, m)
	if v == nil {
		for i := range out {
			out[i] = fill
		}
		return out, nil
	}
	if len(v) != m {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "input bound has %d elements, want %d", len(v), m)
	}
	copy(out, v)
	return out, nil
}

func (s *LinearSystem) States() int  { return s.states }
func (s *LinearSystem) Inputs() int  { return s.inputs }
func (s *LinearSystem) Outputs() int { return s.outputs }

func (s *LinearSystem) A() *mat.Dense { return mat.DenseCopyOf(s.a) }
func (s *LinearSystem) B() *mat.Dense { return mat.DenseCopyOf(s.b) }
func (s *LinearSystem) C() *mat.Dense { return mat.DenseCopyOf(s.c) }
func (s *LinearSystem) D() *mat.Dense { return mat.DenseCopyOf(s.d) }

func (s *LinearSystem) AAt(i, j int) float64 { return s.a.At(i, j) }
func (s *LinearSystem) BAt(i, j int) float64 { return s.b.At(i, j) }

func (s *LinearSystem) UMin() []float64 { return append([]float64(nil), s.uMin...) }
func (s *LinearSystem) UMax() []float64 { return append([]float64(nil), s.uMax...) }

// ClampInput saturates u elementwise to the plant's input bounds.
func (s *LinearSystem) ClampInput(u *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(s.inputs, nil)
	for i := 0; i < s.inputs; i++ {
		out.SetVec(i, math.Max(s.uMin[i], math.Min(s.uMax[i], u.AtVec(i))))
	}
	return out
}

// CalculateX returns the zero-order-hold update Ad·x + Bd·u.
func (s *LinearSystem) CalculateX(x, u *mat.VecDense, dt float64) *mat.VecDense {
	ad, bd := DiscretizeAB(s.a, s.b, dt)
	out := mat.NewVecDense(s.states, nil)
	var bu mat.VecDense
	out.MulVec(ad, x)
	bu.MulVec(bd, u)
	out.AddVec(out, &bu)
	return out
}

// CalculateY returns Cx + Du.
func (s *LinearSystem) CalculateY(x, u *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(s.outputs, nil)
	var du mat.VecDense
	out.MulVec(s.c, x)
	du.MulVec(s.d, u)
	out.AddVec(out, &du)
	return out
}

// Slice returns a copy of the system keeping only the listed outputs.
func (s *LinearSystem) Slice(outputIndices ...int) (*LinearSystem, error) {
	if len(outputIndices) == 0 || len(outputIndices) > s.outputs {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "cannot keep %d of %d outputs", len(outputIndices), s.outputs)
	}
	idx := append([]int(nil), outputIndices...)
	sort.Ints(idx)
	for i, v := range idx {
		if v < 0 || v >= s.outputs || (i > 0 && idx[i-1] == v) {
			return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "invalid output index %d", v)
		}
	}

	c := mat.NewDense(len(idx), s.states, nil)
	d := mat.NewDense(len(idx), s.inputs, nil)
	for row, k := range idx {
		c.SetRow(row, mat.Row(nil, k, s.c))
		d.SetRow(row, mat.Row(nil, k, s.d))
	}
	return NewLinearSystem(s.a, s.b, c, d, s.uMin, s.uMax)
}
