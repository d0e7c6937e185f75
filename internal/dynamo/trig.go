package dynamo

import "math"

// InputModulus wraps input into [minInput, maxInput).
func InputModulus(input, minInput, maxInput float64) float64 {
	modulus := maxInput - minInput

	numMax := math.Trunc((input - minInput) / modulus)
	input -= numMax * modulus

	numMin := math.Trunc((input - maxInput) / modulus)
	input -= numMin * modulus

	if input >= maxInput {
		input -= modulus
	}
	return input
}

// AngleModulus wraps an angle into [-π, π).
func AngleModulus(angle float64) float64 {
	return InputModulus(angle, -math.Pi, math.Pi)
}

// AngleDiff returns the wrapped difference a - b.
func AngleDiff(a, b float64) float64 {
	return AngleModulus(a - b)
}

func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
