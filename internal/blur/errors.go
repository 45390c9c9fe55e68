package blur

import "errors"

var (
	// ErrInvalidResolution is returned when a resolution is not positive.
	ErrInvalidResolution = errors.New("invalid blur resolution: must be positive")

	// ErrInvalidNoise is returned when a noise bound is negative.
	ErrInvalidNoise = errors.New("invalid blur noise: must be non-negative")
)
