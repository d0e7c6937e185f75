package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// MerweScaledSigmaPoints generates the 2n+1 sigma points and weights of
// Van der Merwe's scaled unscented transform.
type MerweScaledSigmaPoints struct {
	states int
	alpha  float64
	beta   float64
	kappa  int

	lambda float64
	wm, wc *mat.VecDense
}

func NewMerweScaledSigmaPoints(states int, alpha, beta float64, kappa int) *MerweScaledSigmaPoints {
	s := &MerweScaledSigmaPoints{
		states: states,
		alpha:  alpha,
		beta:   beta,
		kappa:  kappa,
	}
	s.computeWeights()
	return s
}

// DefaultMerweScaledSigmaPoints uses alpha = 1e-3, beta = 2 and
// kappa = 3 - states.
func DefaultMerweScaledSigmaPoints(states int) *MerweScaledSigmaPoints {
	return NewMerweScaledSigmaPoints(states, 1e-3, 2, 3-states)
}

func (s *MerweScaledSigmaPoints) computeWeights() {
	n := float64(s.states)
	s.lambda = s.alpha*s.alpha*(n+float64(s.kappa)) - n

	count := s.NumSigmas()
	c := 0.5 / (n + s.lambda)
	s.wm = mat.NewVecDense(count, nil)
	s.wc = mat.NewVecDense(count, nil)
	for i := 1; i < count; i++ {
		s.wm.SetVec(i, c)
		s.wc.SetVec(i, c)
	}
	s.wm.SetVec(0, s.lambda/(n+s.lambda))
	s.wc.SetVec(0, s.lambda/(n+s.lambda)+(1-s.alpha*s.alpha+s.beta))
}

func (s *MerweScaledSigmaPoints) NumSigmas() int { return 2*s.states + 1 }

func (s *MerweScaledSigmaPoints) Lambda() float64 { return s.lambda }

// SquareRootSigmaPoints returns the states×(2n+1) sigma point matrix for mean
// x and upper-triangular factor S with P = SᵀS. Column 0 is x; columns 1..n
// and n+1..2n offset x by ±η times the rows of S.
func (s *MerweScaledSigmaPoints) SquareRootSigmaPoints(x *mat.VecDense, sqrtP mat.Matrix) *mat.Dense {
	n := s.states
	eta := math.Sqrt(s.lambda + float64(n))

	sigmas := mat.NewDense(n, s.NumSigmas(), nil)
	sigmas.SetCol(0, dynamo.RawCopy(x))
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			d := eta * sqrtP.At(k, i)
			sigmas.Set(i, 1+k, x.AtVec(i)+d)
			sigmas.Set(i, 1+n+k, x.AtVec(i)-d)
		}
	}
	return sigmas
}

func (s *MerweScaledSigmaPoints) Wm() *mat.VecDense { return mat.VecDenseCopyOf(s.wm) }
func (s *MerweScaledSigmaPoints) Wc() *mat.VecDense { return mat.VecDenseCopyOf(s.wc) }

func (s *MerweScaledSigmaPoints) WmAt(i int) float64 { return s.wm.AtVec(i) }
func (s *MerweScaledSigmaPoints) WcAt(i int) float64 { return s.wc.AtVec(i) }
