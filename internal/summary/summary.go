package summary

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/nao1215/oniongraph/internal/relay"
	"github.com/nao1215/oniongraph/internal/report"
)

// Summary aggregates the records of one or more logs.
// The zero value is not usable; call New.
type Summary struct {
	// Records is the number of well-formed records added.
	Records int

	// Malformed is the number of lines that were not records.
	Malformed int

	// ByStatus counts records per status.
	ByStatus map[report.Status]int

	// Reasons counts failure reasons as written in the log.
	Reasons map[string]int

	// First and Last bound the (blurred) record times.
	First time.Time
	Last  time.Time

	guards map[relay.ID]*GuardStats
}

// GuardStats is what the log says about one guard.
type GuardStats struct {
	Guard relay.ID

	Warmups        int
	WarmupFailures int
	Pairs          int
	PairFailures   int

	// elapsed holds the build times of successful pairs.
	elapsed []time.Duration
}

// Median returns the median build time of the guard's successful pairs,
// or zero when there are none.
func (g GuardStats) Median() time.Duration {
	return median(g.elapsed)
}

// New returns an empty Summary.
func New() *Summary {
	return &Summary{
		ByStatus: make(map[report.Status]int),
		Reasons:  make(map[string]int),
		guards:   make(map[relay.ID]*GuardStats),
	}
}

// Add counts rec. Records without a middle are warm-ups.
func (s *Summary) Add(rec report.Record) {
	s.Records++
	s.ByStatus[rec.Status]++
	if rec.Status == report.StatusError {
		reason := rec.Reason
		if reason == "" {
			reason = "unknown"
		}
		s.Reasons[reason]++
	}

	if s.First.IsZero() || rec.Time.Before(s.First) {
		s.First = rec.Time
	}
	if rec.Time.After(s.Last) {
		s.Last = rec.Time
	}

	g := s.guard(rec.Guard)
	failed := rec.Status != report.StatusOK
	switch {
	case rec.Middle == "":
		g.Warmups++
		if failed {
			g.WarmupFailures++
		}
	default:
		g.Pairs++
		if failed {
			g.PairFailures++
		} else {
			g.elapsed = append(g.elapsed, rec.Elapsed)
		}
	}
}

func (s *Summary) guard(id relay.ID) *GuardStats {
	g, ok := s.guards[id]
	if !ok {
		g = &GuardStats{Guard: id}
		s.guards[id] = g
	}
	return g
}

// Merge adds everything counted in o to s.
func (s *Summary) Merge(o *Summary) {
	s.Records += o.Records
	s.Malformed += o.Malformed
	for status, n := range o.ByStatus {
		s.ByStatus[status] += n
	}
	for reason, n := range o.Reasons {
		s.Reasons[reason] += n
	}
	if !o.First.IsZero() && (s.First.IsZero() || o.First.Before(s.First)) {
		s.First = o.First
	}
	if o.Last.After(s.Last) {
		s.Last = o.Last
	}
	for id, og := range o.guards {
		g := s.guard(id)
		g.Warmups += og.Warmups
		g.WarmupFailures += og.WarmupFailures
		g.Pairs += og.Pairs
		g.PairFailures += og.PairFailures
		g.elapsed = append(g.elapsed, og.elapsed...)
	}
}

// Guards returns the per-guard statistics ordered by fingerprint.
func (s *Summary) Guards() []GuardStats {
	out := make([]GuardStats, 0, len(s.guards))
	for _, id := range slices.Sorted(maps.Keys(s.guards)) {
		out = append(out, *s.guards[id])
	}
	return out
}

// Pairs returns the number of two-hop attempts and how many of them failed.
func (s *Summary) Pairs() (attempts, failures int) {
	for _, g := range s.guards {
		attempts += g.Pairs
		failures += g.PairFailures
	}
	return attempts, failures
}

// ErrorRate is the share of records with status error.
func (s *Summary) ErrorRate() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.ByStatus[report.StatusError]) / float64(s.Records)
}

// Elapsed returns the minimum, median and maximum build time over every
// successful pair. All three are zero when there is none.
func (s *Summary) Elapsed() (lo, mid, hi time.Duration) {
	var all []time.Duration
	for _, g := range s.guards {
		all = append(all, g.elapsed...)
	}
	if len(all) == 0 {
		return 0, 0, 0
	}
	return slices.Min(all), median(all), slices.Max(all)
}

// TopReasons returns up to n failure reasons, most frequent first.
func (s *Summary) TopReasons(n int) []ReasonCount {
	out := make([]ReasonCount, 0, len(s.Reasons))
	for reason, count := range s.Reasons {
		out = append(out, ReasonCount{Reason: reason, Count: count})
	}
	slices.SortFunc(out, func(a, b ReasonCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ReasonCount is one row of TopReasons.
type ReasonCount struct {
	Reason string
	Count  int
}

func median(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
