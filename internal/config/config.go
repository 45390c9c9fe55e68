package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/oniongraph/internal/blur"
	"github.com/nao1215/oniongraph/internal/relay"
	"github.com/nao1215/oniongraph/internal/report"
	"github.com/nao1215/oniongraph/internal/sampler"
	"github.com/nao1215/oniongraph/internal/tor"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "oniongraph"

	// DefaultControlAddress is the host of the local Tor control port.
	// 127.0.0.1 avoids resolving localhost to ::1 where Tor does not listen.
	DefaultControlAddress = "127.0.0.1"

	// DefaultControlPort 0 tries the system Tor port, then Tor Browser's.
	DefaultControlPort = 0

	// DefaultDialTimeout bounds the connect to the control port.
	DefaultDialTimeout = tor.DefaultDialTimeout

	// DefaultBuildTimeout bounds a single circuit build. Tor's own circuit
	// build timeout normally fires first.
	DefaultBuildTimeout = tor.DefaultBuildTimeout

	// DefaultGuards is the number of guards drawn per run.
	DefaultGuards = sampler.DefaultGuards

	// DefaultMiddles is the number of middles drawn per guard.
	DefaultMiddles = sampler.DefaultMiddles

	// DefaultFormat writes the seven-field text line.
	DefaultFormat = report.FormatText

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = tor.DefaultStartupTimeout
)

// DefaultFlags returns the default relay capability filter. Stable and
// Valid are left out so repeated runs cover relays with short uptimes.
func DefaultFlags() []string {
	return []string{relay.FlagFast}
}

// Disclosure holds the two blur parameter pairs of a run.
type Disclosure struct {
	// LogTime blurs the emission time of every record.
	LogTime blur.Params `yaml:"logTime"`

	// Elapsed blurs circuit build durations.
	Elapsed blur.Params `yaml:"elapsed"`
}

// DefaultDisclosure returns hourly log times and 100ms build durations,
// each with noise up to one resolution step.
func DefaultDisclosure() Disclosure {
	return Disclosure{
		LogTime: blur.Params{Resolution: blur.DefaultLogResolution, Noise: blur.DefaultLogNoise},
		Elapsed: blur.Params{Resolution: blur.DefaultElapsedResolution, Noise: blur.DefaultElapsedNoise},
	}
}

// Config holds all settings of a run. It is built once at startup and
// passed explicitly; nothing reads it from global state.
type Config struct {
	// ControlAddress is the host of the Tor control port.
	ControlAddress string

	// ControlPort is the control port. 0 tries 9051, then 9151.
	ControlPort int

	// CookieFile overrides the cookie path Tor advertises.
	CookieFile string

	// Password is the control port password. It is only ever read from
	// the environment, never from the config file.
	Password string

	// DialTimeout bounds the connect to the control port.
	DialTimeout time.Duration

	// BuildTimeout bounds each circuit build. 0 waits for Tor.
	BuildTimeout time.Duration

	// Guards is the number of guards drawn per run.
	Guards int

	// Middles is the number of middles drawn per guard.
	Middles int

	// Flags is the capability filter: relays must carry all of them.
	Flags []string

	// Disclosure holds the blur parameters.
	Disclosure Disclosure

	// Format is the record format, "text" or "json".
	Format string

	// Verbose enables debug logging on stderr.
	Verbose bool

	// EmbeddedTor starts a private Tor daemon instead of using a running
	// one. The daemon takes 1-3 minutes to bootstrap.
	EmbeddedTor bool

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the configuration file the settings were read from.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ControlAddress:    DefaultControlAddress,
		ControlPort:       DefaultControlPort,
		DialTimeout:       DefaultDialTimeout,
		BuildTimeout:      DefaultBuildTimeout,
		Guards:            DefaultGuards,
		Middles:           DefaultMiddles,
		Flags:             DefaultFlags(),
		Disclosure:        DefaultDisclosure(),
		Format:            DefaultFormat,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGConfigDir returns the XDG config directory for oniongraph.
// On Linux: ~/.config/oniongraph
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ControlAddresses returns the control port addresses to try, in order.
func (c *Config) ControlAddresses() []string {
	return tor.ControlAddresses(c.ControlAddress, c.ControlPort)
}

// Credentials returns what is offered to the control port.
func (c *Config) Credentials() tor.Credentials {
	return tor.Credentials{Password: c.Password, CookieFile: c.CookieFile}
}

// Sampling returns the draw sizes for the sampling loop.
func (c *Config) Sampling() sampler.Config {
	return sampler.Config{Guards: c.Guards, Middles: c.Middles}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.ControlAddress == "" {
		return ErrInvalidControlAddress
	}
	if c.ControlPort < 0 || c.ControlPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidControlPort, c.ControlPort)
	}
	if c.EmbeddedTor && c.ControlPort != 0 {
		return ErrConflictingControl
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout %s must be positive", ErrInvalidTimeout, c.DialTimeout)
	}
	if c.BuildTimeout < 0 {
		return fmt.Errorf("%w: build timeout %s must not be negative", ErrInvalidTimeout, c.BuildTimeout)
	}
	if c.EmbeddedTor && c.TorStartupTimeout <= 0 {
		return fmt.Errorf("%w: Tor startup timeout %s must be positive", ErrInvalidTimeout, c.TorStartupTimeout)
	}
	if c.Guards <= 0 || c.Middles <= 0 {
		return fmt.Errorf("%w: guards=%d middles=%d", ErrInvalidSampleSize, c.Guards, c.Middles)
	}
	if slices.Contains(c.Flags, "") {
		return ErrInvalidFlag
	}
	if err := c.Disclosure.LogTime.Validate(); err != nil {
		return fmt.Errorf("%w: log time: %w", ErrInvalidDisclosure, err)
	}
	if err := c.Disclosure.Elapsed.Validate(); err != nil {
		return fmt.Errorf("%w: elapsed: %w", ErrInvalidDisclosure, err)
	}
	if c.Format != report.FormatText && c.Format != report.FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
	return nil
}
