// Package main provides the entry point for the oniongraph CLI.
//
// oniongraph measures how long Tor takes to build circuits between pairs
// of relays. It asks a local Tor process, over its control port, to build
// one-hop and two-hop circuits and writes one blurred line per attempt.
//
// Usage:
//
//	oniongraph scan
//	oniongraph scan --control-port 9151 -g 10 -m 20
//	oniongraph check
//
// See --help for all available options.
package main

// main is the entry point for oniongraph.
func main() {
	Execute()
}
