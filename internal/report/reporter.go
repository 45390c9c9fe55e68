package report

import (
	"log/slog"
	"time"

	"github.com/nao1215/oniongraph/internal/blur"
)

// Reporter blurs attempts into records and hands them to a Writer.
type Reporter struct {
	writer  Writer
	blurrer *blur.Blurrer
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the clock read at emission.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter creates a Reporter that writes blurred records to w.
func NewReporter(w Writer, blurrer *blur.Blurrer, opts ...Option) *Reporter {
	r := &Reporter{
		writer:  w,
		blurrer: blurrer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Record builds the persisted form of a. The clock is read now, not when
// the scan started, and both time columns are blurred.
func (r *Reporter) Record(a Attempt) Record {
	return Record{
		Time:       r.blurrer.Time(r.now()),
		Guard:      a.Guard,
		Middle:     a.Middle,
		PathLength: a.PathLength,
		Elapsed:    r.blurrer.Elapsed(a.Elapsed),
		Status:     a.Status,
		Reason:     a.Reason,
	}
}

// Report writes exactly one record for a. A failed write is logged and
// otherwise ignored so that one bad write does not end a measurement run.
func (r *Reporter) Report(a Attempt) {
	rec := r.Record(a)
	r.logger.Debug("attempt reported",
		"status", string(a.Status),
		"pathLength", a.PathLength,
		"circuit", a.Circuit.String(),
	)
	if err := r.writer.WriteRecord(rec); err != nil {
		r.logger.Error("failed to write record", "error", err)
	}
}
