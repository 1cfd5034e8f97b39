package index

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
