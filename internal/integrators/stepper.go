package integrators

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

var ErrUnknownIntegrator = errors.New("integrators: unknown integrator")

// Stepper advances a plant by one simulation tick.
type Stepper interface {
	Name() string
	Step(f dynamo.Dynamics, x, u *mat.VecDense, dt float64) (*mat.VecDense, error)
}

type FixedRK4 struct{}

func NewRK4() *FixedRK4 {
	return &FixedRK4{}
}

func (r *FixedRK4) Name() string { return "rk4" }

func (r *FixedRK4) Step(f dynamo.Dynamics, x, u *mat.VecDense, dt float64) (*mat.VecDense, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	next := RK4(f, x, u, dt)
	if !dynamo.IsValid(next) {
		return nil, dynamo.ErrInvalidState
	}
	return next, nil
}

// Adaptive wraps RKDP or RKF45 with a fixed error tolerance.
type Adaptive struct {
	name string
	tab  tableau
	tol  float64
}

func NewRKDP(tol float64) *Adaptive {
	return &Adaptive{name: "rkdp", tab: dormandPrince, tol: tol}
}

func NewRKF45(tol float64) *Adaptive {
	return &Adaptive{name: "rkf45", tab: fehlberg, tol: tol}
}

func (a *Adaptive) Name() string { return a.name }

func (a *Adaptive) Tolerance() float64 {
	if a.tol <= 0 {
		return DefaultMaxError
	}
	return a.tol
}

func (a *Adaptive) Step(f dynamo.Dynamics, x, u *mat.VecDense, dt float64) (*mat.VecDense, error) {
	return integrateAdaptive(a.tab, f, x, u, dt, a.tol)
}

var registry = map[string]func(tol float64) Stepper{
	"rk4":   func(float64) Stepper { return NewRK4() },
	"rkdp":  func(tol float64) Stepper { return NewRKDP(tol) },
	"rkf45": func(tol float64) Stepper { return NewRKF45(tol) },
}

// ByName returns the stepper registered under name. tol is ignored by
// fixed-step integrators.
func ByName(name string, tol float64) (Stepper, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntegrator, "%q (have %v)", name, Names())
	}
	return ctor(tol), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
