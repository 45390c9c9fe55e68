package summary

import (
	"fmt"
	"io"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/oniongraph/internal/report"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// highErrorRate is the error share above which the digest warns.
const highErrorRate = 0.5

// topReasons is how many failure reasons the digest lists.
const topReasons = 10

// MarkdownWriter renders a Summary as Markdown.
type MarkdownWriter struct {
	output  io.Writer
	printer *message.Printer
	title   cases.Caser
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to w.
func NewMarkdownWriter(w io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		output:  w,
		printer: message.NewPrinter(language.English),
		title:   cases.Title(language.English),
	}
}

// Write renders s.
func (w *MarkdownWriter) Write(s *Summary) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("oniongraph Measurement Summary")
	md.PlainText("")

	w.writeOverview(md, s)
	if s.Records == 0 {
		md.Note("No records found.")
		return md.Build()
	}

	w.writeStatus(md, s)
	w.writeGuards(md, s)
	w.writeReasons(md, s)

	md.HorizontalRule()
	md.PlainTextf("*Times are blurred as written to the log; they bound, not date, the measurements.*")

	return md.Build()
}

func (w *MarkdownWriter) count(n int) string {
	return w.printer.Sprintf("%d", n)
}

func (w *MarkdownWriter) writeOverview(md *markdown.Markdown, s *Summary) {
	attempts, failures := s.Pairs()
	lo, mid, hi := s.Elapsed()

	rows := [][]string{
		{"Records", w.count(s.Records)},
		{"Malformed lines", w.count(s.Malformed)},
		{"Guards", w.count(len(s.guards))},
		{"Pair attempts", w.count(attempts)},
		{"Pair failures", w.count(failures)},
	}
	if s.Records > 0 {
		rows = append(rows,
			[]string{"First record", s.First.UTC().Format(time.RFC3339)},
			[]string{"Last record", s.Last.UTC().Format(time.RFC3339)},
		)
	}
	if mid > 0 {
		rows = append(rows, []string{"Pair build time (min / median / max)",
			fmt.Sprintf("%s / %s / %s", seconds(lo), seconds(mid), seconds(hi))})
	}

	md.H2("Overview")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeStatus(md *markdown.Markdown, s *Summary) {
	md.H2("Status")
	md.PlainText("")

	statuses := []report.Status{report.StatusOK, report.StatusError, report.StatusSkip}
	rows := make([][]string, 0, len(statuses))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Attempts by Status"),
		piechart.WithShowData(true),
	)
	for _, status := range statuses {
		n := s.ByStatus[status]
		rows = append(rows, []string{w.title.String(string(status)), w.count(n)})
		if n > 0 {
			chart.LabelAndIntValue(w.title.String(string(status)), uint64(n))
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Records"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	if rate := s.ErrorRate(); rate > highErrorRate {
		md.Warningf("%.0f%% of attempts failed. Check the control port and the relay flags.", rate*100)
	} else {
		md.Tip(fmt.Sprintf("%.0f%% of attempts succeeded.", (1-rate)*100))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeGuards(md *markdown.Markdown, s *Summary) {
	md.H2("Guards")
	md.PlainText("")

	guards := s.Guards()
	rows := make([][]string, 0, len(guards))
	for _, g := range guards {
		median := "-"
		if m := g.Median(); m > 0 {
			median = seconds(m)
		}
		rows = append(rows, []string{
			"`" + g.Guard.String() + "`",
			fmt.Sprintf("%d/%d", g.Warmups-g.WarmupFailures, g.Warmups),
			fmt.Sprintf("%d/%d", g.Pairs-g.PairFailures, g.Pairs),
			median,
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Guard", "Warm-ups OK", "Pairs OK", "Median build time"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeReasons(md *markdown.Markdown, s *Summary) {
	md.H2("Failure Reasons")
	md.PlainText("")

	reasons := s.TopReasons(topReasons)
	if len(reasons) == 0 {
		md.PlainText("No failures recorded.")
		md.PlainText("")
		return
	}

	items := make([]string, 0, len(reasons))
	for _, r := range reasons {
		items = append(items, fmt.Sprintf("`%s`: %s", r.Reason, w.count(r.Count)))
	}
	md.BulletList(items...)
	md.PlainText("")
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
