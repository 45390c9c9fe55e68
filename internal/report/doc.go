// Package report turns scan attempts into the persisted measurement log.
//
// Every attempt becomes exactly one Record. The Reporter blurs the emission
// time and the elapsed duration before a Writer sees them, and the circuit
// identifier never leaves this package. Writers render records either as
// the seven-field text line (the default) or as JSON Lines.
//
// The text line is
//
//	<epochSeconds> <guard> <middle|path_had_no_relay_here> <pathLength> <elapsed> <status> <reason|"">
//
// and Parse reads it back.
package report
