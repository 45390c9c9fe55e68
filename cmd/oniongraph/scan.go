package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/oniongraph/internal/blur"
	"github.com/nao1215/oniongraph/internal/circuit"
	"github.com/nao1215/oniongraph/internal/config"
	"github.com/nao1215/oniongraph/internal/random"
	"github.com/nao1215/oniongraph/internal/relay"
	"github.com/nao1215/oniongraph/internal/report"
	"github.com/nao1215/oniongraph/internal/sampler"
	"github.com/nao1215/oniongraph/internal/tor"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Measure circuit build times between randomly drawn relays",
		Long: `Scan runs one measurement: it draws guards from the relays in Tor's
consensus, warms up a one-hop circuit to each guard and then times two-hop
circuits from the guard to an independent draw of middles.

Each attempt is written to stdout as one line:

  <time> <guard> <middle> <pathLength> <elapsed> <status> <reason>

<time> and <elapsed> are rounded and jittered. Failed builds have
pathLength 0, elapsed 0.0 and status "error". Diagnostics go to stderr.

Examples:
  # Use the Tor on 9051 or Tor Browser on 9151
  oniongraph scan

  # Larger run against a specific control port with password auth
  ONIONGRAPH_PW=secret oniongraph scan --control-port 9051 --password-env ONIONGRAPH_PW -g 20 -m 50

  # Only stable relays, JSON Lines output
  oniongraph scan --flags Fast,Stable --format json

  # Start a private Tor daemon for the run
  oniongraph scan --embedded-tor`,
		Args: cobra.NoArgs,
		RunE: runScanCmd,
	}

	addControlFlags(cmd)

	cmd.Flags().IntP("guards", "g", config.DefaultGuards,
		"Number of guards drawn per run")
	cmd.Flags().IntP("middles", "m", config.DefaultMiddles,
		"Number of middles drawn per guard")
	cmd.Flags().StringSlice("flags", config.DefaultFlags(),
		"Consensus flags every measured relay must carry")
	cmd.Flags().Duration("build-timeout", config.DefaultBuildTimeout,
		"Upper bound for one circuit build (0 waits for Tor)")
	cmd.Flags().String("format", config.DefaultFormat,
		"Record format: text or json")

	cmd.Flags().Bool("embedded-tor", false,
		"Start a private Tor daemon instead of using a running one")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	return cmd
}

// addControlFlags registers the flags shared by scan and check.
func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().String("control-address", config.DefaultControlAddress,
		"Host of the Tor control port")
	cmd.Flags().Int("control-port", config.DefaultControlPort,
		"Tor control port (0 tries 9051, then 9151)")
	cmd.Flags().String("cookie-file", "",
		"Control auth cookie file (default: the path Tor advertises)")
	cmd.Flags().String("password-env", "",
		"Environment variable holding the control port password")
	cmd.Flags().Duration("dial-timeout", config.DefaultDialTimeout,
		"Timeout for connecting to the control port")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .oniongraph, then $XDG_CONFIG_HOME/oniongraph/config.yaml, then ~/.oniongraph)")
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd, cfg.Verbose)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing current attempt...")
			cancel()
		case <-ctx.Done():
		}
	}()

	err = runScan(ctx, cfg, cmd.OutOrStdout(), logger)
	if errors.Is(err, context.Canceled) {
		logger.Warn("measurement run interrupted")
		return nil
	}
	return err
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig resolves defaults, the configuration file and the flags the
// user set, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if err := config.Load(cfg, configPath); err != nil {
		return nil, err
	}

	// Only flags given on the command line override the file.
	if flags.Changed("control-address") {
		if cfg.ControlAddress, err = flags.GetString("control-address"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("control-port") {
		if cfg.ControlPort, err = flags.GetInt("control-port"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("cookie-file") {
		if cfg.CookieFile, err = flags.GetString("cookie-file"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("password-env") {
		name, err := flags.GetString("password-env")
		if err != nil {
			return nil, err
		}
		cfg.Password = os.Getenv(name)
		if cfg.Password == "" {
			return nil, fmt.Errorf("environment variable %s is empty or unset", name)
		}
	}
	if flags.Changed("dial-timeout") {
		if cfg.DialTimeout, err = flags.GetDuration("dial-timeout"); err != nil {
			return nil, err
		}
	}

	// Flags registered only on scan.
	if f := flags.Lookup("guards"); f != nil && f.Changed {
		if cfg.Guards, err = flags.GetInt("guards"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("middles"); f != nil && f.Changed {
		if cfg.Middles, err = flags.GetInt("middles"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("flags"); f != nil && f.Changed {
		if cfg.Flags, err = flags.GetStringSlice("flags"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("build-timeout"); f != nil && f.Changed {
		if cfg.BuildTimeout, err = flags.GetDuration("build-timeout"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("format"); f != nil && f.Changed {
		if cfg.Format, err = flags.GetString("format"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("embedded-tor"); f != nil && f.Changed {
		if cfg.EmbeddedTor, err = flags.GetBool("embedded-tor"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("tor-timeout"); f != nil && f.Changed {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return nil, err
		}
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// runScan connects to Tor and performs one measurement run, writing records
// to out.
func runScan(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	addresses := cfg.ControlAddresses()
	creds := cfg.Credentials()

	if cfg.EmbeddedTor {
		embeddedTor, err := startEmbeddedTor(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()

		addresses = []string{embeddedTor.ControlAddr()}
		if creds, err = embeddedTor.Credentials(); err != nil {
			return err
		}
	}

	conn, err := tor.Dial(ctx, addresses,
		tor.WithLogger(logger),
		tor.WithDialTimeout(cfg.DialTimeout),
		tor.WithBuildTimeout(cfg.BuildTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to Tor control port: %w", err)
	}
	defer conn.Close()

	if err := conn.Authenticate(ctx, creds); err != nil {
		return fmt.Errorf("failed to authenticate to Tor control port: %w", err)
	}

	return measure(ctx, cfg, conn, out, logger)
}

// session is the control port as the measurement needs it.
type session interface {
	circuit.Controller
	relay.StatusSource
}

// measure wires one measurement run over an authenticated session.
func measure(ctx context.Context, cfg *config.Config, sess session, out io.Writer, logger *slog.Logger) error {
	writer, err := report.NewWriter(cfg.Format, out)
	if err != nil {
		return err
	}

	rng := random.New()
	reporter := report.NewReporter(writer,
		blur.NewBlurrer(cfg.Disclosure.LogTime, cfg.Disclosure.Elapsed, rng),
		report.WithLogger(logger),
	)

	loop := sampler.NewLoop(
		cfg.Sampling(),
		relay.NewDirectory(sess, cfg.Flags),
		circuit.NewScanner(sess, circuit.WithLogger(logger)),
		reporter,
		sampler.WithPicker(random.NewSampler[relay.ID](rng)),
		sampler.WithLogger(logger),
	)
	return loop.Run(ctx)
}

// startEmbeddedTor launches the private Tor daemon.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.EmbeddedTor, error) {
	logger.Warn("starting embedded Tor daemon, this may take 1-3 minutes...",
		"timeout", cfg.TorStartupTimeout,
	)

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithDaemonLogger(logger),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "controlAddress", embeddedTor.ControlAddr())
	return embeddedTor, nil
}
