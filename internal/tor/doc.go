// Package tor talks to a Tor process over its control port.
//
// Conn is a single authenticated control session. It lists the relays of the
// current consensus, extends measurement circuits through an exact path and
// closes them again. One reader goroutine separates command replies from the
// asynchronous CIRC events used to learn when a circuit is built; commands
// are serialized, so a Conn serves one caller at a time.
//
// The package also wraps tornago to start a private Tor daemon when no
// system Tor is available (EmbeddedTor), and uses tornago's control client
// as an independent check that control credentials work (CheckControl).
//
// Design decision: circuit commands (EXTENDCIRCUIT, CLOSECIRCUIT) and the
// ns/all consensus dump are spoken directly over net/textproto, because the
// control protocol is line based and these commands need the raw replies and
// events.
package tor
