package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Output formats accepted by NewWriter.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Writer persists records.
type Writer interface {
	// WriteRecord writes one record. A record is never split across writes.
	WriteRecord(rec Record) error
}

// NewWriter returns the Writer for format.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewLineWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LineWriter writes the seven-field text line.
type LineWriter struct {
	output io.Writer
}

// NewLineWriter creates a LineWriter that outputs to the given writer.
func NewLineWriter(output io.Writer) *LineWriter {
	return &LineWriter{output: output}
}

// WriteRecord writes rec followed by a newline in a single Write call.
func (w *LineWriter) WriteRecord(rec Record) error {
	_, err := io.WriteString(w.output, Format(rec)+"\n")
	return err
}

// JSONWriter writes one JSON object per line.
//
// The columns keep their text-line values, including the RelayNull
// placeholder, so both formats carry the same information.
type JSONWriter struct {
	enc *json.Encoder
}

// jsonRecord is the JSON Lines shape of a Record.
type jsonRecord struct {
	Time       string  `json:"time"`
	Guard      string  `json:"guard"`
	Middle     string  `json:"middle"`
	PathLength int     `json:"pathLength"`
	Elapsed    float64 `json:"elapsed"`
	Status     Status  `json:"status"`
	Reason     string  `json:"reason"`
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(output)}
}

// WriteRecord encodes rec as one line of JSON.
func (w *JSONWriter) WriteRecord(rec Record) error {
	return w.enc.Encode(jsonRecord{
		Time:       rec.Time.UTC().Format(time.RFC3339),
		Guard:      column(string(rec.Guard)),
		Middle:     column(string(rec.Middle)),
		PathLength: rec.PathLength,
		Elapsed:    rec.Elapsed.Round(tenthSecond).Seconds(),
		Status:     rec.Status,
		Reason:     rec.Reason,
	})
}
