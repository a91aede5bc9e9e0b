package domain

import "errors"

// Startup errors. A cube that fails with either of these must not be served.
var (
	// ErrMalformedCube reports a raw cube whose shape is inconsistent or an
	// assembled cube that violates one of its invariants.
	ErrMalformedCube = errors.New("malformed forecast cube")

	// ErrEmptyEnsemble reports a raw cube with a zero-length member dimension.
	ErrEmptyEnsemble = errors.New("empty ensemble")
)

// Query errors. They are local to one call and never touch the cube.
var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrIndexOutOfRange = errors.New("step index out of range")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyData       = errors.New("no finite values")
)
