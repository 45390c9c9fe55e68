// Package summary digests measurement logs written by oniongraph scan.
//
// Records are read back with report.Parse and aggregated per guard: how
// many warm-ups and pairs succeeded, why the failures failed and how the
// blurred build times of the successful pairs are spread. The digest is
// rendered as Markdown.
//
// Summaries only ever see blurred values, so they reveal nothing the log
// itself does not.
package summary
