package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrInvalidControlAddress is returned when no control host is set.
	ErrInvalidControlAddress = errors.New("invalid control address: must not be empty")

	// ErrInvalidControlPort is returned for ports outside 0..65535.
	// Port 0 means "try 9051, then 9151".
	ErrInvalidControlPort = errors.New("invalid control port: must be between 0 and 65535")

	// ErrInvalidTimeout is returned when the dial or startup timeout is not
	// positive, or the build timeout is negative.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidSampleSize is returned when the guard or middle count is not
	// positive.
	ErrInvalidSampleSize = errors.New("invalid sample size: must be positive")

	// ErrInvalidFlag is returned for an empty relay flag.
	ErrInvalidFlag = errors.New("invalid relay flag: must not be empty")

	// ErrInvalidDisclosure is returned when a blur parameter pair is unusable.
	ErrInvalidDisclosure = errors.New("invalid disclosure parameters")

	// ErrInvalidFormat is returned for an unknown output format.
	ErrInvalidFormat = errors.New("invalid output format: must be text or json")

	// ErrConflictingControl is returned when an embedded Tor daemon is
	// requested together with an explicit control port.
	ErrConflictingControl = errors.New("conflicting control settings: --embedded-tor cannot be used with --control-port")
)
