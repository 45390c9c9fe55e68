package main

import (
	"fmt"

	"github.com/nao1215/oniongraph/internal/summary"
	"github.com/spf13/cobra"
)

// NewSummaryCmd creates the summary command.
func NewSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [log files...]",
		Short: "Summarize measurement logs as Markdown",
		Long: `Summary reads logs written by oniongraph scan and prints a Markdown digest:
status counts, per-guard success and build times, and the most frequent
failure reasons. With no file arguments, or with "-", stdin is read.

Only the blurred values from the log are used.

Examples:
  oniongraph scan >> measurements.log
  oniongraph summary measurements.log

  # Several runs at once
  oniongraph summary runs/*.log > SUMMARY.md`,
		RunE: runSummaryCmd,
	}

	cmd.Flags().IntP("concurrency", "j", summary.DefaultConcurrency,
		"Number of log files read at once")

	return cmd
}

// runSummaryCmd executes the summary command.
func runSummaryCmd(cmd *cobra.Command, args []string) error {
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	logger, err := newLogger(cmd, getVerboseFlag(cmd))
	if err != nil {
		return err
	}
	reader := summary.NewReader(
		summary.WithConcurrency(concurrency),
		summary.WithLogger(logger),
	)

	var s *summary.Summary
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		s, err = reader.Read(cmd.Context(), "stdin", cmd.InOrStdin())
	} else {
		s, err = reader.ReadFiles(cmd.Context(), args)
	}
	if err != nil {
		return err
	}

	if s.Malformed > 0 {
		logger.Warn("skipped lines that are not records", "count", s.Malformed)
	}

	return summary.NewMarkdownWriter(cmd.OutOrStdout()).Write(s)
}
