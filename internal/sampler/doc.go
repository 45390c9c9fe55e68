// Package sampler drives a measurement run.
//
// A run lists the relay pool once, draws guards without replacement and,
// for every guard, makes a one-hop warm-up scan followed by two-hop scans
// to an independent draw of middles. Each attempt is handed to the
// reporter as soon as it finishes. Scans never overlap.
package sampler
