// Package circuit builds measurement circuits and times their construction.
//
// A Scanner asks a Controller (the Tor control session) for a circuit
// through an exact path of one or two relays, marked with the controller
// purpose so Tor never attaches user traffic to it. The time from request
// to BUILT is the measured latency. Every circuit the Scanner obtains is
// closed before Scan returns, on every exit path.
package circuit
