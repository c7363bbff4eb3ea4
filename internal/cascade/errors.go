package cascade

import "errors"

var (
	// ErrOutOfMemory reports buffers too large to allocate for the
	// requested geometry.
	ErrOutOfMemory = errors.New("cascade: buffers too large for geometry")

	// ErrShortRead reports a state file that ended early.
	ErrShortRead = errors.New("cascade: short read from state file")

	// ErrShortWrite reports a state file that could not be written in full.
	ErrShortWrite = errors.New("cascade: short write to state file")

	// ErrGeometryMismatch reports a state header whose sizes disagree.
	ErrGeometryMismatch = errors.New("cascade: state geometry mismatch")

	// ErrClosed reports use of a closed engine.
	ErrClosed = errors.New("cascade: engine closed")
)
