// Package dynamo holds the primitives shared by the estimation and control
// packages:
//
//   - [Dynamics], [Measurement]: vector functions ẋ = f(x, u) and y = h(x, u)
//   - [ResidualFunc], [AddFunc], [MeanFunc]: pluggable vector arithmetic for
//     states that live on a manifold (angles)
//   - matrix helpers: covariance and cost construction, symmetry and
//     definiteness checks, [Logm] and [Powm]
//   - sentinel errors used across packages
//
// Vectors are *mat.VecDense and matrices *mat.Dense throughout.
package dynamo
