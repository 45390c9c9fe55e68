// Package blur implements the disclosure-control transform applied to every
// time value before it reaches the measurement log.
//
// A value is blurred by adding uniform random noise drawn from [0, noise)
// and flooring the sum to a multiple of the resolution. Absolute log times
// use an hourly resolution, which matches how often the relay consensus
// changes. Circuit build durations use a 100ms resolution, enough to compare
// relays statistically without fingerprinting an individual build.
//
// The transform is one way. The noise comes from a crypto/rand backed
// generator so it cannot be replayed to recover the exact value.
package blur
