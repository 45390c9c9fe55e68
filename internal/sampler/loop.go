package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nao1215/oniongraph/internal/circuit"
	"github.com/nao1215/oniongraph/internal/random"
	"github.com/nao1215/oniongraph/internal/relay"
	"github.com/nao1215/oniongraph/internal/report"
)

// Default draw sizes.
const (
	DefaultGuards  = 5
	DefaultMiddles = 10
)

// ErrInvalidCount is returned for negative draw sizes.
var ErrInvalidCount = errors.New("sample size must not be negative")

// RelayLister returns the candidate relay pool.
type RelayLister interface {
	ListRelays(ctx context.Context) (relay.Pool, error)
}

// Scanner measures one circuit build.
type Scanner interface {
	Scan(ctx context.Context, path circuit.Path) circuit.Outcome
}

// Picker draws k distinct relays from items.
type Picker interface {
	Sample(items []relay.ID, k int) []relay.ID
}

// Reporter persists one attempt.
type Reporter interface {
	Report(a report.Attempt)
}

// Config holds the draw sizes of a run.
type Config struct {
	// Guards is the number of guards drawn for the run.
	Guards int

	// Middles is the number of middles drawn for each guard.
	Middles int
}

// Validate checks the draw sizes.
func (c Config) Validate() error {
	if c.Guards < 0 {
		return fmt.Errorf("%w: guards=%d", ErrInvalidCount, c.Guards)
	}
	if c.Middles < 0 {
		return fmt.Errorf("%w: middles=%d", ErrInvalidCount, c.Middles)
	}
	return nil
}

// Loop is one measurement run.
type Loop struct {
	cfg      Config
	relays   RelayLister
	scanner  Scanner
	reporter Reporter
	picker   Picker
	logger   *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithPicker replaces the crypto-random picker.
func WithPicker(p Picker) Option {
	return func(l *Loop) {
		l.picker = p
	}
}

// WithLogger sets the logger for run progress.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a run over the given collaborators.
func NewLoop(cfg Config, relays RelayLister, scanner Scanner, reporter Reporter, opts ...Option) *Loop {
	l := &Loop{
		cfg:      cfg,
		relays:   relays,
		scanner:  scanner,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.picker == nil {
		l.picker = random.NewSampler[relay.ID](nil)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Run performs the measurement run.
//
// Directory errors are fatal and returned before any attempt is made.
// Scan failures are reported and never end the run. Cancellation is
// checked between attempts, so an attempt in flight is still reported;
// the run then returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	if err := l.cfg.Validate(); err != nil {
		return err
	}

	pool, err := l.relays.ListRelays(ctx)
	if err != nil {
		return fmt.Errorf("failed to list relays: %w", err)
	}

	// The run ID ties together the diagnostics of one run.
	logger := l.logger.With("run", uuid.NewString())

	guards := l.picker.Sample(pool, l.cfg.Guards)
	logger.Info("measurement run started",
		"pool", len(pool),
		"guards", len(guards),
		"middles", l.cfg.Middles,
	)

	var attempts int
	for i, guard := range guards {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Debug("scanning guard", "guard", guard.String(), "index", i)

		n, err := l.scanGuard(ctx, pool, guard)
		attempts += n
		if err != nil {
			return err
		}
	}

	logger.Info("measurement run finished", "attempts", attempts)
	return nil
}

// scanGuard runs the warm-up scan for guard and, if it succeeds, the pair
// scans. It returns the number of reported attempts.
func (l *Loop) scanGuard(ctx context.Context, pool relay.Pool, guard relay.ID) (int, error) {
	switch out := l.scanner.Scan(ctx, circuit.Path{guard}).(type) {
	case circuit.Success:
		l.reporter.Report(report.Attempt{
			Guard:      guard,
			PathLength: 1,
			Elapsed:    out.Elapsed,
			Circuit:    out.Circuit,
			Status:     report.StatusOK,
		})
	case circuit.Failure:
		// No middles are tried through a guard that cannot be reached.
		l.reporter.Report(report.Attempt{
			Guard:      guard,
			PathLength: report.PathLengthNull,
			Elapsed:    report.TimeNull,
			Circuit:    circuit.Null,
			Status:     report.StatusError,
			Reason:     out.Reason(),
		})
		return 1, nil
	}

	attempts := 1
	for _, middle := range l.picker.Sample(pool, l.cfg.Middles) {
		if middle == guard {
			continue
		}
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		l.scanPair(ctx, guard, middle)
		attempts++
	}
	return attempts, nil
}

// scanPair scans [guard, middle] and reports the outcome.
func (l *Loop) scanPair(ctx context.Context, guard, middle relay.ID) {
	switch out := l.scanner.Scan(ctx, circuit.Path{guard, middle}).(type) {
	case circuit.Success:
		l.reporter.Report(report.Attempt{
			Guard:      guard,
			Middle:     middle,
			PathLength: 2,
			Elapsed:    out.Elapsed,
			Circuit:    out.Circuit,
			Status:     report.StatusOK,
		})
	case circuit.Failure:
		l.reporter.Report(report.Attempt{
			Guard:      guard,
			Middle:     middle,
			PathLength: report.PathLengthNull,
			Elapsed:    report.TimeNull,
			Circuit:    circuit.Null,
			Status:     report.StatusError,
			Reason:     out.Reason(),
		})
	}
}
