// Package random provides the cryptographically strong random source used
// for relay sampling and for the noise added by the disclosure transform.
//
// Every 64-bit word is read from crypto/rand. The generator is never seeded,
// so an observer cannot replay the draws to undo the noise in a log or to
// predict which relays a run will pick.
package random
