// Package spectral owns the frequency-domain half of the cascade.
//
// Responsibilities: the 2-D real FFT plan, the band-pass filter bank that
// partitions the spectrum into cascade levels, the decomposition of a field
// into normalized levels, and the power-law slopes of the radial spectrum.
// Key types: Plan, FilterBank, Decomposer, Spectrum.
//
// Dependency rule: spectral knows nothing about time. Advection, history and
// AR parameters live in the flow, stack and armodel packages.
package spectral
