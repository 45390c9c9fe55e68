package tor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout bounds the bootstrap of an embedded daemon.
const DefaultStartupTimeout = 3 * time.Minute

// cookieFileName is the cookie tornago's daemon writes into its data dir.
const cookieFileName = "control_auth_cookie"

// EmbeddedTor is a private Tor daemon started through tornago for the
// length of one measurement run. Its control port always uses cookie
// authentication.
//
// Bootstrapping takes 1-3 minutes. Start returns once the daemon holds a
// consensus, so ns/all is complete by the time the run lists relays.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	controlAddr    string
	cookieFile     string
	startupTimeout time.Duration
	logger         *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// WithDaemonLogger sets the logger for daemon lifecycle messages.
func WithDaemonLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.logger = logger
	}
}

// NewEmbeddedTor creates an unstarted daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: DefaultStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// startResult carries the outcome of tornago.StartTorDaemon.
type startResult struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon and waits for it to bootstrap.
//
// tornago blocks until bootstrap finishes, so the launch runs in its own
// goroutine. If ctx ends first Start returns ctx.Err() at once and the
// daemon is stopped as soon as it comes up.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	// Only the control port matters; ":0" lets the OS pick both ports.
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	started := make(chan startResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		started <- startResult{process: process, err: err}
	}()

	select {
	case res := <-started:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		e.process = res.process
		e.controlAddr = res.process.ControlAddr()
		e.cookieFile = filepath.Join(res.process.DataDir(), cookieFileName)
		e.logger.Debug("embedded Tor bootstrapped", "controlAddress", e.controlAddr)
		return nil
	case <-ctx.Done():
		go func() {
			res := <-started
			if res.err != nil {
				return
			}
			if err := res.process.Stop(); err != nil {
				e.logger.Warn("failed to stop abandoned Tor daemon", "error", err)
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. It is safe to call on an unstarted daemon
// and more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.controlAddr = ""
	e.cookieFile = ""
	return err
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// ControlAddr returns the control port address, or "" if not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// CookieFile returns the control auth cookie path, or "" if not running.
func (e *EmbeddedTor) CookieFile() string {
	return e.cookieFile
}

// Credentials returns the cookie credentials for the daemon's control port.
func (e *EmbeddedTor) Credentials() (Credentials, error) {
	if !e.IsRunning() {
		return Credentials{}, ErrDaemonNotRunning
	}
	return Credentials{CookieFile: e.cookieFile}, nil
}
