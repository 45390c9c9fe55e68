package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/oniongraph/internal/circuit"
	"github.com/nao1215/oniongraph/internal/random"
	"github.com/nao1215/oniongraph/internal/relay"
	"github.com/nao1215/oniongraph/internal/report"
)

type fakeLister struct {
	pool  relay.Pool
	err   error
	calls int
}

func (f *fakeLister) ListRelays(context.Context) (relay.Pool, error) {
	f.calls++
	return f.pool, f.err
}

// scriptedPicker returns its draws in order, ignoring the pool.
type scriptedPicker struct {
	draws [][]relay.ID
	ks    []int
}

func (p *scriptedPicker) Sample(_ []relay.ID, k int) []relay.ID {
	p.ks = append(p.ks, k)
	if len(p.draws) == 0 {
		return nil
	}
	d := p.draws[0]
	p.draws = p.draws[1:]
	return d
}

// fakeScanner fails paths listed in failures and succeeds otherwise,
// with elapsed times taken from durations.
type fakeScanner struct {
	failures  map[string]error
	durations map[string]time.Duration
	paths     []circuit.Path
	onScan    func()
}

func key(p circuit.Path) string {
	ids := make([]string, len(p))
	for i, id := range p {
		ids[i] = string(id)
	}
	return strings.Join(ids, ",")
}

func (s *fakeScanner) Scan(_ context.Context, path circuit.Path) circuit.Outcome {
	s.paths = append(s.paths, slices.Clone(path))
	if s.onScan != nil {
		s.onScan()
	}
	if err, ok := s.failures[key(path)]; ok {
		return circuit.Failure{Err: err}
	}
	return circuit.Success{Elapsed: s.durations[key(path)], Circuit: circuit.ID("c" + key(path))}
}

type recordingReporter struct {
	attempts []report.Attempt
}

func (r *recordingReporter) Report(a report.Attempt) {
	r.attempts = append(r.attempts, a)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPool = relay.Pool{"A", "B", "C", "D", "E", "F"}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{pool: testPool}
	picker := &scriptedPicker{draws: [][]relay.ID{{"A"}, {"B", "C"}}}
	scanner := &fakeScanner{durations: map[string]time.Duration{
		"A":   400 * time.Millisecond,
		"A,B": 1230 * time.Millisecond,
		"A,C": 870 * time.Millisecond,
	}}
	rep := &recordingReporter{}

	loop := NewLoop(Config{Guards: 1, Middles: 2}, lister, scanner, rep,
		WithPicker(picker), WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []report.Attempt{
		{Guard: "A", PathLength: 1, Elapsed: 400 * time.Millisecond, Circuit: "cA", Status: report.StatusOK},
		{Guard: "A", Middle: "B", PathLength: 2, Elapsed: 1230 * time.Millisecond, Circuit: "cA,B", Status: report.StatusOK},
		{Guard: "A", Middle: "C", PathLength: 2, Elapsed: 870 * time.Millisecond, Circuit: "cA,C", Status: report.StatusOK},
	}
	if !slices.Equal(rep.attempts, want) {
		t.Errorf("attempts = %+v\nwant %+v", rep.attempts, want)
	}
	if lister.calls != 1 {
		t.Errorf("ListRelays called %d times, want 1", lister.calls)
	}
	if !slices.Equal(picker.ks, []int{1, 2}) {
		t.Errorf("sample sizes = %v, want [1 2]", picker.ks)
	}
}

func TestRunGuardFailure(t *testing.T) {
	t.Parallel()

	picker := &scriptedPicker{draws: [][]relay.ID{{"A", "D"}, {"B"}}}
	scanner := &fakeScanner{failures: map[string]error{"A": errors.New("circuit FAILED: TIMEOUT")}}
	rep := &recordingReporter{}

	loop := NewLoop(Config{Guards: 2, Middles: 1}, &fakeLister{pool: testPool}, scanner, rep,
		WithPicker(picker), WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.attempts) != 3 {
		t.Fatalf("got %d attempts, want 3: %+v", len(rep.attempts), rep.attempts)
	}
	failed := rep.attempts[0]
	wantFailed := report.Attempt{
		Guard:      "A",
		PathLength: report.PathLengthNull,
		Elapsed:    report.TimeNull,
		Circuit:    circuit.Null,
		Status:     report.StatusError,
		Reason:     "circuit FAILED: TIMEOUT",
	}
	if failed != wantFailed {
		t.Errorf("failed warm-up = %+v, want %+v", failed, wantFailed)
	}

	// The failed guard must not trigger a middle draw: the single middle
	// draw belongs to guard D.
	for _, p := range scanner.paths {
		if len(p) == 2 && p[0] == "A" {
			t.Errorf("pair scanned through failed guard: %v", p)
		}
	}
	if rep.attempts[1].Guard != "D" || rep.attempts[2].Middle != "B" {
		t.Errorf("unexpected attempts after failure: %+v", rep.attempts[1:])
	}
}

func TestRunSameRelaySkip(t *testing.T) {
	t.Parallel()

	picker := &scriptedPicker{draws: [][]relay.ID{{"A"}, {"B", "A", "C"}}}
	scanner := &fakeScanner{}
	rep := &recordingReporter{}

	loop := NewLoop(Config{Guards: 1, Middles: 3}, &fakeLister{pool: testPool}, scanner, rep,
		WithPicker(picker), WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.attempts) != 3 {
		t.Fatalf("got %d attempts, want 3", len(rep.attempts))
	}
	for _, a := range rep.attempts {
		if a.Middle == a.Guard {
			t.Errorf("attempt with guard == middle reported: %+v", a)
		}
		if a.Status == report.StatusSkip {
			t.Errorf("skip reported: %+v", a)
		}
	}
	for _, p := range scanner.paths {
		if err := p.Validate(); err != nil {
			t.Errorf("invalid path scanned: %v", p)
		}
	}
}

func TestRunPairFailure(t *testing.T) {
	t.Parallel()

	picker := &scriptedPicker{draws: [][]relay.ID{{"A"}, {"B", "C"}}}
	scanner := &fakeScanner{failures: map[string]error{"A,B": errors.New("552 No such router")}}
	rep := &recordingReporter{}

	loop := NewLoop(Config{Guards: 1, Middles: 2}, &fakeLister{pool: testPool}, scanner, rep,
		WithPicker(picker), WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.attempts) != 3 {
		t.Fatalf("got %d attempts, want 3", len(rep.attempts))
	}
	got := rep.attempts[1]
	if got.Middle != "B" || got.Status != report.StatusError || got.PathLength != 0 ||
		got.Elapsed != 0 || got.Reason != "552 No such router" {
		t.Errorf("pair failure = %+v", got)
	}
	if rep.attempts[2].Status != report.StatusOK {
		t.Errorf("a pair failure must not stop the guard: %+v", rep.attempts[2])
	}
}

func TestRunDirectoryErrorIsFatal(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
	}{
		{"empty pool", relay.ErrEmptyPool},
		{"control error", errors.New("connection reset")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			scanner := &fakeScanner{}
			rep := &recordingReporter{}
			loop := NewLoop(Config{Guards: 1, Middles: 1}, &fakeLister{err: tc.err}, scanner, rep,
				WithLogger(discardLogger()))

			err := loop.Run(context.Background())
			if !errors.Is(err, tc.err) {
				t.Errorf("Run() error = %v, want %v", err, tc.err)
			}
			if len(rep.attempts) != 0 || len(scanner.paths) != 0 {
				t.Errorf("no attempt may be made after a directory error")
			}
		})
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{pool: testPool}
	loop := NewLoop(Config{Guards: -1}, lister, &fakeScanner{}, &recordingReporter{},
		WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected ErrInvalidCount, got %v", err)
	}
	if lister.calls != 0 {
		t.Error("directory must not be queried with an invalid config")
	}
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	picker := &scriptedPicker{draws: [][]relay.ID{{"A", "D"}, {"B", "C"}}}
	// Cancel during the first pair scan.
	scanner := &fakeScanner{}
	scanner.onScan = func() {
		if len(scanner.paths) == 2 {
			cancel()
		}
	}
	rep := &recordingReporter{}

	loop := NewLoop(Config{Guards: 2, Middles: 2}, &fakeLister{pool: testPool}, scanner, rep,
		WithPicker(picker), WithLogger(discardLogger()))
	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The in-flight pair scan is still reported; nothing after it runs.
	if len(rep.attempts) != 2 {
		t.Errorf("got %d attempts, want 2: %+v", len(rep.attempts), rep.attempts)
	}
	if len(scanner.paths) != 2 {
		t.Errorf("got %d scans, want 2", len(scanner.paths))
	}
}

func TestRunWithCryptoPicker(t *testing.T) {
	t.Parallel()

	rep := &recordingReporter{}
	scanner := &fakeScanner{}
	loop := NewLoop(Config{Guards: 3, Middles: 4}, &fakeLister{pool: testPool}, scanner, rep,
		WithPicker(random.NewSampler[relay.ID](nil)), WithLogger(discardLogger()))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	guards := map[relay.ID]bool{}
	middles := map[relay.ID]map[relay.ID]bool{}
	for _, a := range rep.attempts {
		if a.PathLength == 1 {
			if guards[a.Guard] {
				t.Errorf("guard %s drawn twice", a.Guard)
			}
			guards[a.Guard] = true
			middles[a.Guard] = map[relay.ID]bool{}
			continue
		}
		if a.Middle == a.Guard {
			t.Errorf("guard == middle reported for %s", a.Guard)
		}
		if middles[a.Guard][a.Middle] {
			t.Errorf("middle %s drawn twice for guard %s", a.Middle, a.Guard)
		}
		middles[a.Guard][a.Middle] = true
	}
	if len(guards) != 3 {
		t.Errorf("got %d guards, want 3", len(guards))
	}
	for g, m := range middles {
		if len(m) < 3 || len(m) > 4 {
			t.Errorf("guard %s has %d middles, want 3 or 4", g, len(m))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{Guards: DefaultGuards, Middles: DefaultMiddles}, false},
		{"zero", Config{}, false},
		{"negative guards", Config{Guards: -1}, true},
		{"negative middles", Config{Middles: -1}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRunTagsLogsWithRunID(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	run := func() {
		picker := &scriptedPicker{draws: [][]relay.ID{{"A"}, {"B"}}}
		loop := NewLoop(Config{Guards: 1, Middles: 1}, &fakeLister{pool: testPool}, &fakeScanner{},
			&recordingReporter{}, WithPicker(picker), WithLogger(logger))
		if err := loop.Run(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	run()
	run()

	ids := make(map[string]int)
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		var entry struct {
			Run string `json:"run"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry.Run == "" {
			t.Errorf("log line without run id: %s", line)
		}
		ids[entry.Run]++
	}
	if len(ids) != 2 {
		t.Errorf("got %d distinct run ids, want 2", len(ids))
	}
}
