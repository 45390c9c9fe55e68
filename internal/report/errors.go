package report

import "errors"

var (
	// ErrMalformedRecord is returned by Parse for lines that do not have the
	// seven-field record shape.
	ErrMalformedRecord = errors.New("malformed record line")

	// ErrUnknownFormat is returned by NewWriter for an unsupported format.
	ErrUnknownFormat = errors.New("unknown output format")
)
