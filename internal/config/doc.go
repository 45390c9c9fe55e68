// Package config holds the settings of a measurement run: where the Tor
// control port is, how many relays to draw, which relays qualify and how
// strongly the log is blurred.
//
// Settings are resolved once at startup, in order: defaults from NewConfig,
// the YAML configuration file, then command line flags. The result is
// validated and not changed afterwards.
package config
