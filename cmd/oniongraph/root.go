package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/oniongraph/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for oniongraph.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oniongraph",
		Short: "Measure circuit build times between Tor relay pairs",
		Long: `oniongraph measures pairwise connectivity latency between Tor relays.

It asks a local Tor process, over its control port, to build one-hop and
two-hop circuits between randomly drawn relays and times how long each
build takes. Every attempt produces one line on stdout whose time and
duration are rounded and jittered, so the log does not reveal the exact
order or timing of the measurements.

A running Tor with ControlPort enabled is used by default.
Use --embedded-tor to start a private Tor daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", log.FormatText, "Diagnostic log format on stderr: text or json")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewSummaryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// getLogFormatFlag retrieves the log-format flag from the command or its
// root.
func getLogFormatFlag(cmd *cobra.Command) string {
	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			return log.FormatText
		}
	}
	return format
}

// newLogger builds the stderr diagnostic logger for cmd.
func newLogger(cmd *cobra.Command, verbose bool) (*slog.Logger, error) {
	return log.NewLogger(cmd.ErrOrStderr(), getLogFormatFlag(cmd), verbose)
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
