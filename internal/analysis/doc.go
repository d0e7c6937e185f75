// Package analysis looks at logged signals in the frequency domain.
//
// [PowerSpectrum] turns a uniformly sampled series, such as a wheel voltage
// or the tracking error, into a one-sided power spectrum. Controller
// chatter shows up as power far above the bandwidth of the trajectory:
//
//	s, err := analysis.PowerSpectrum(voltages, dt)
//	if err == nil && s.FractionAbove(5) > 0.2 {
//	    // a fifth of the signal power sits above 5 Hz
//	}
package analysis
