// Package armodel estimates the per-level autoregressive model of a cascade.
//
// Responsibilities: lagged Pearson correlations between advected and current
// levels, the repair rules that keep those correlations inside the AR(2)
// stationarity region, the Yule-Walker solution for phi, and the scale-based
// default correlations used when a field is too dry to measure.
// Key types: Violation.
//
// Dependency rule: armodel works on plain slices. It does not know how the
// levels were produced or advected.
package armodel
