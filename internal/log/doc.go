// Package log provides the diagnostic logger used on stderr, built on
// log/slog.
//
// The measurement log on stdout is blurred before it is written. The
// diagnostic log must not undo that, so SecureHandler masks everything
// the record stream deliberately withholds:
//   - control port credentials (passwords, cookies, safe cookie hashes)
//   - circuit IDs, which Tor issues in attempt order
//   - raw elapsed times and durations of circuit builds
//   - relay fingerprints, by key and anywhere inside string or error values
//
// Masking applies in verbose mode too.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Debug("circuit built", "circuit", "17", "elapsed", d) // both masked
package log
