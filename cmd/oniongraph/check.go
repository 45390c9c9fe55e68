package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/oniongraph/internal/tor"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the Tor control port accepts our credentials",
		Long: `Check connects to the Tor control port, confirms that it is one and
authenticates with the configured credentials. Nothing is measured.

Cookie authentication is verified with an independent control client, so a
passing check also rules out a problem in oniongraph's own session code.

Examples:
  oniongraph check
  oniongraph check --control-port 9151
  oniongraph check --cookie-file /run/tor/control.authcookie`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	addControlFlags(cmd)
	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	return checkControl(cmd.Context(), cmd, cfg.ControlAddresses(), cfg.Credentials(), cfg.DialTimeout)
}

// checkControl reports the status of each address and stops at the first
// one that works.
func checkControl(ctx context.Context, cmd *cobra.Command, addresses []string, creds tor.Credentials, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(addresses) == 0 {
		return tor.ErrInvalidControlAddress
	}

	var last tor.ControlStatus
	for _, addr := range addresses {
		last = tor.CheckControl(ctx, addr, creds, timeout)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, last)
		if last == tor.ControlStatusOK {
			return nil
		}
	}
	return fmt.Errorf("tor control port check failed: %w", last.Error())
}
