package circuit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/oniongraph/internal/relay"
)

// PurposeController marks circuits that Tor must never use for streams.
const PurposeController = "controller"

// Placeholders for circuits that do not exist.
const (
	// Null stands for "no circuit was built".
	Null = "circuit_not_built"

	// Invalid is the zero ID: no circuit has been obtained.
	Invalid ID = ""
)

var (
	// ErrInvalidPath is returned for paths that must never be scanned.
	ErrInvalidPath = errors.New("invalid path")

	// ErrBuildFailed wraps every error reported by the Controller while
	// building a circuit.
	ErrBuildFailed = errors.New("circuit build failed")
)

// ID identifies a circuit within one control session.
// IDs are issued sequentially by Tor, so they reveal attempt order.
type ID string

// String returns the ID, or "no_circuit_id" when none was obtained.
func (id ID) String() string {
	if id == Invalid {
		return "no_circuit_id"
	}
	return string(id)
}

// Path is an ordered list of one (guard only) or two (guard, middle) relays.
type Path []relay.ID

// Validate rejects empty paths, paths longer than two relays and paths whose
// guard and middle are the same relay.
func (p Path) Validate() error {
	switch len(p) {
	case 1:
		return nil
	case 2:
		if p[0] == p[1] {
			return fmt.Errorf("%w: same relay as guard and middle", ErrInvalidPath)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d relays", ErrInvalidPath, len(p))
	}
}

// Controller is the part of the control session the Scanner needs.
type Controller interface {
	// BuildCircuit extends a new circuit through path and blocks until it
	// is built or has failed. An ID is returned whenever a circuit may
	// still exist, even together with an error.
	BuildCircuit(ctx context.Context, path []relay.ID, purpose string) (ID, error)

	// CloseCircuit tears the circuit down.
	CloseCircuit(ctx context.Context, id ID) error
}

// Outcome is the result of one scan: either Success or Failure.
type Outcome interface {
	outcome()
}

// Success is a circuit that was built.
type Success struct {
	// Elapsed is the wall-clock time from request to completion.
	Elapsed time.Duration

	// Circuit is the ID the circuit had. It must never be written to the log.
	Circuit ID

	// TeardownErr is set when closing the circuit failed afterwards.
	TeardownErr error
}

// Failure is a circuit that could not be built.
type Failure struct {
	// Err is the underlying reason.
	Err error

	// TeardownErr is set when closing a half-built circuit failed.
	TeardownErr error
}

func (Success) outcome() {}
func (Failure) outcome() {}

// Reason returns the failure text written to the log.
func (f Failure) Reason() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Scanner times circuit construction through a Controller.
type Scanner struct {
	ctrl   Controller
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock sets the clock used to measure build time.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// WithLogger sets the logger used for teardown diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner returns a Scanner driving ctrl.
func NewScanner(ctrl Controller, opts ...Option) *Scanner {
	s := &Scanner{
		ctrl: ctrl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Scan builds a circuit through path and reports how long it took.
// It does not retry. Any circuit obtained is closed before Scan returns,
// including when the measurement itself panics.
func (s *Scanner) Scan(ctx context.Context, path Path) (out Outcome) {
	if err := path.Validate(); err != nil {
		return Failure{Err: err}
	}

	id := Invalid
	defer func() {
		if id == Invalid {
			return
		}
		// Teardown must run even when the scan was cancelled.
		err := s.ctrl.CloseCircuit(context.WithoutCancel(ctx), id)
		if err == nil {
			return
		}
		s.logger.Warn("circuit teardown failed",
			"circuit", id.String(),
			"error", err,
		)
		switch o := out.(type) {
		case Success:
			o.TeardownErr = err
			out = o
		case Failure:
			o.TeardownErr = err
			out = o
		}
	}()

	start := s.now()
	built, err := s.ctrl.BuildCircuit(ctx, path, PurposeController)
	id = built
	if err != nil {
		return Failure{Err: fmt.Errorf("%w: %w", ErrBuildFailed, err)}
	}
	return Success{
		Elapsed: s.now().Sub(start),
		Circuit: id,
	}
}
