// Package packiq implements the 16-bit packed floating-point format used for
// recorded radar IQ samples.
//
// Two layouts share the same 16 bits. The legacy layout carries a 5-bit
// exponent and an 11-bit signed mantissa; the high-SNR layout carries a 4-bit
// exponent, a 12-bit signed mantissa and a linear underflow range near zero.
// Both cover the closed interval [-4, +4] and saturate outside it.
//
// Codec owns the optional 65536-entry decode tables. Tables are built lazily,
// one per flag combination, the first time a slice is decoded with that
// combination.
package packiq
