// Package relay models Tor relays as seen in the network consensus and
// builds the pool of relays eligible for latency sampling.
//
// The pool is built once per run from the router status entries the
// control port reports. A relay is eligible when it advertises every flag in
// the configured capability filter (Fast by default).
package relay
