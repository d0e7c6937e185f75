// Package drive models a differential-drive robot for state estimation and
// trajectory tracking.
//
// The estimator carries ten states:
//
//	[x, y, θ, vl, vr, dl, dr, vErrL, vErrR, ωErr]
//
// where the last three are random-walk disturbances absorbing voltage and
// gyro errors. Encoders and the gyro correct every loop through
// [StateEstimator.UpdateWithTime]; delayed global poses are fused with
// [StateEstimator.ApplyPastGlobalMeasurement].
//
// [LTVController] tracks the first five states with gains blended by the
// square root of the mean wheel speed.
package drive
