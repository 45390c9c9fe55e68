package summary

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/oniongraph/internal/report"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is how many log files are read at once.
const DefaultConcurrency = 4

// maxLineSize bounds a single log line. Records are far shorter.
const maxLineSize = 64 * 1024

// Reader reads measurement logs into a Summary.
type Reader struct {
	concurrency int
	logger      *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithConcurrency sets how many files ReadFiles opens at once.
// Values below one are ignored.
func WithConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger for skipped lines.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader creates a Reader.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Read summarizes the records in src. Blank lines are ignored and lines
// that are not records are counted as malformed.
func (r *Reader) Read(ctx context.Context, name string, src io.Reader) (*Summary, error) {
	s := New()
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := report.Parse(line)
		if err != nil {
			s.Malformed++
			r.logger.Debug("skipping malformed line", "file", name, "line", lineNo, "error", err)
			continue
		}
		s.Add(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return s, nil
}

// ReadFiles summarizes every file in paths. Files are read concurrently
// and merged in the order given; the first error cancels the rest.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) (*Summary, error) {
	results := make([]*Summary, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			f, err := os.Open(path) //nolint:gosec // paths are given by the user
			if err != nil {
				return fmt.Errorf("failed to open log: %w", err)
			}
			defer f.Close()

			s, err := r.Read(ctx, path, f)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := New()
	for _, s := range results {
		total.Merge(s)
	}
	r.logger.Info("logs summarized", "files", len(paths), "records", total.Records, "malformed", total.Malformed)
	return total, nil
}
