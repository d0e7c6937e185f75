package riccati

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Kind classifies why a Riccati equation has no stabilizing solution.
type Kind int

const (
	ABNotStabilizable Kind = iota + 1
	ACNotDetectable
	QNotSymmetric
	QNotPositiveSemidefinite
	RNotSymmetric
	RNotPositiveDefinite
	NoConvergence
)

func (k Kind) String() string {
	switch k {
	case ABNotStabilizable:
		return "the (A, B) pair is not stabilizable"
	case ACNotDetectable:
		return "the (A, C) pair is not detectable"
	case QNotSymmetric:
		return "Q is not symmetric"
	case QNotPositiveSemidefinite:
		return "Q is not positive semidefinite"
	case RNotSymmetric:
		return "R is not symmetric"
	case RNotPositiveDefinite:
		return "R is not positive definite"
	case NoConvergence:
		return "the doubling iteration did not converge"
	}
	return fmt.Sprintf("riccati kind %d", int(k))
}

// Named pairs a matrix with the symbol it is reported under.
type Named struct {
	Name string
	M    mat.Matrix
}

// Error reports a precondition failure together with the matrices that
// caused it. Errors match with errors.Is by Kind.
type Error struct {
	Kind     Kind
	Matrices []Named
}

var (
	ErrABNotStabilizable        error = &Error{Kind: ABNotStabilizable}
	ErrACNotDetectable          error = &Error{Kind: ACNotDetectable}
	ErrQNotSymmetric            error = &Error{Kind: QNotSymmetric}
	ErrQNotPositiveSemidefinite error = &Error{Kind: QNotPositiveSemidefinite}
	ErrRNotSymmetric            error = &Error{Kind: RNotSymmetric}
	ErrRNotPositiveDefinite     error = &Error{Kind: RNotPositiveDefinite}
	ErrNoConvergence            error = &Error{Kind: NoConvergence}
)

func newError(kind Kind, matrices ...Named) *Error {
	return &Error{Kind: kind, Matrices: matrices}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("riccati: ")
	sb.WriteString(e.Kind.String())
	for _, m := range e.Matrices {
		fmt.Fprintf(&sb, "\n\n%s =\n%.6g", m.Name, mat.Formatted(m.M, mat.Squeeze()))
	}
	return sb.String()
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
