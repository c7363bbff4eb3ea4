// Package cascade implements the scale-separation cascade used for
// short-term precipitation nowcasting.
//
// Responsibilities: the per-cycle engine (map ingest, decomposition,
// tracking, AR parameter estimation, weight updates and forecast
// rollouts), the rain transforms, the binary state file, and snapshots of
// that state into an archive.
// Key types: Engine, Config, Tuning, FieldStatistics, Parameters.
//
// Dependency rule: the numerical building blocks live in the spectral,
// flow, armodel, stack and grid sub-packages; this package wires them into
// the cycle and owns all engine state. An Engine is single threaded. Give
// each radar source its own Engine, or serialise access to a shared one.
package cascade
