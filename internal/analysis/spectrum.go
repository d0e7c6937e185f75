package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrShortSeries = errors.New("analysis: series too short")

// Spectrum is a one-sided power spectrum. Freqs are in Hz.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// PowerSpectrum removes the mean of series, sampled every dt seconds, and
// returns |X(f)|²/n for each non-negative frequency bin.
func PowerSpectrum(series []float64, dt float64) (*Spectrum, error) {
	n := len(series)
	if n < 2 {
		return nil, errors.Wrapf(ErrShortSeries, "%d samples", n)
	}
	if dt <= 0 {
		return nil, errors.Errorf("analysis: sample period must be positive, got %g", dt)
	}

	centered := make([]float64, n)
	copy(centered, series)
	floats.AddConst(-stat.Mean(centered, nil), centered)

	coeffs := fft.FFTReal(centered)

	bins := n/2 + 1
	s := &Spectrum{
		Freqs: make([]float64, bins),
		Power: make([]float64, bins),
	}
	for i := 0; i < bins; i++ {
		s.Freqs[i] = float64(i) / (float64(n) * dt)
		mag := cmplx.Abs(coeffs[i])
		s.Power[i] = mag * mag / float64(n)
	}
	return s, nil
}

// Dominant returns the strongest bin above DC. A flat series gives zeros.
func (s *Spectrum) Dominant() (freq, power float64) {
	if len(s.Power) < 2 {
		return 0, 0
	}
	i := floats.MaxIdx(s.Power[1:]) + 1
	if s.Power[i] == 0 {
		return 0, 0
	}
	return s.Freqs[i], s.Power[i]
}

// FractionAbove is the share of total power in bins strictly above freq.
func (s *Spectrum) FractionAbove(freq float64) float64 {
	total := floats.Sum(s.Power)
	if total == 0 {
		return 0
	}
	var above float64
	for i, f := range s.Freqs {
		if f > freq {
			above += s.Power[i]
		}
	}
	return above / total
}
