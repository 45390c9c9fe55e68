package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/oniongraph/internal/circuit"
	"github.com/nao1215/oniongraph/internal/relay"
)

// Status is the outcome column of a record.
type Status string

const (
	// StatusOK marks a circuit that was built.
	StatusOK Status = "ok"

	// StatusSkip marks an attempt that was not made.
	StatusSkip Status = "skip"

	// StatusError marks a circuit build that failed.
	StatusError Status = "error"
)

// Valid reports whether s is one of the three record statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusSkip, StatusError:
		return true
	default:
		return false
	}
}

// Placeholders written when a column has no value.
const (
	// RelayNull fills the middle column of one-hop and failed guard attempts.
	RelayNull = "path_had_no_relay_here"

	// PathLengthNull is the path length of a failed attempt.
	PathLengthNull = 0

	// TimeNull is the elapsed time of a failed attempt.
	TimeNull time.Duration = 0

	// emptyReason is how an empty reason column is written.
	emptyReason = `""`

	// recordFields is the number of whitespace separated columns.
	recordFields = 7
)

// tenthSecond is the precision of the elapsed column.
const tenthSecond = time.Second / 10

// Attempt is what the sampling loop knows about one scan.
type Attempt struct {
	Guard      relay.ID
	Middle     relay.ID // empty for one-hop paths
	PathLength int
	Elapsed    time.Duration
	Circuit    circuit.ID // never written
	Status     Status
	Reason     string
}

// Record is one persisted line. Time and Elapsed are already blurred.
type Record struct {
	Time       time.Time
	Guard      relay.ID
	Middle     relay.ID
	PathLength int
	Elapsed    time.Duration
	Status     Status
	Reason     string
}

// Format renders rec as a seven-field line without the trailing newline.
func Format(rec Record) string {
	return fmt.Sprintf("%d %s %s %d %.1f %s %s",
		rec.Time.Unix(),
		column(string(rec.Guard)),
		column(string(rec.Middle)),
		rec.PathLength,
		rec.Elapsed.Seconds(),
		rec.Status,
		reasonColumn(rec.Reason),
	)
}

// column substitutes RelayNull for an empty relay column.
func column(id string) string {
	if id == "" {
		return RelayNull
	}
	return id
}

// reasonColumn keeps the reason to a single field: whitespace runs become
// underscores and an empty reason is written as "".
func reasonColumn(reason string) string {
	words := strings.Fields(reason)
	if len(words) == 0 {
		return emptyReason
	}
	return strings.Join(words, "_")
}

// Parse reads a line written by Format. Relay columns holding RelayNull
// and an empty reason come back as empty strings. Elapsed is exact to the
// tenth of a second that was written.
func Parse(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != recordFields {
		return Record{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedRecord, len(fields), recordFields)
	}

	epoch, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad time %q", ErrMalformedRecord, fields[0])
	}

	pathLength, err := strconv.Atoi(fields[3])
	if err != nil || pathLength < 0 || pathLength > 2 {
		return Record{}, fmt.Errorf("%w: bad path length %q", ErrMalformedRecord, fields[3])
	}

	seconds, err := strconv.ParseFloat(fields[4], 64)
	if err != nil || seconds < 0 {
		return Record{}, fmt.Errorf("%w: bad elapsed %q", ErrMalformedRecord, fields[4])
	}

	status := Status(fields[5])
	if !status.Valid() {
		return Record{}, fmt.Errorf("%w: bad status %q", ErrMalformedRecord, fields[5])
	}

	rec := Record{
		Time:       time.Unix(epoch, 0).UTC(),
		Guard:      relay.ID(unnull(fields[1])),
		Middle:     relay.ID(unnull(fields[2])),
		PathLength: pathLength,
		Elapsed:    time.Duration(math.Round(seconds*10)) * tenthSecond,
		Status:     status,
		Reason:     fields[6],
	}
	if rec.Reason == emptyReason {
		rec.Reason = ""
	}
	return rec, nil
}

func unnull(s string) string {
	if s == RelayNull {
		return ""
	}
	return s
}
