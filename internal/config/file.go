package config

import (
	"os"
	"time"

	"github.com/nao1215/oniongraph/internal/blur"
)

// File represents the structure of the configuration file.
// Zero values leave the corresponding setting unchanged.
type File struct {
	Control    ControlSection    `yaml:"control,omitempty"`
	Sampling   SamplingSection   `yaml:"sampling,omitempty"`
	Disclosure DisclosureSection `yaml:"disclosure,omitempty"`
	Output     OutputSection     `yaml:"output,omitempty"`
	Tor        TorSection        `yaml:"tor,omitempty"`
}

// ControlSection configures the control port session.
type ControlSection struct {
	// Address is the control host.
	Address string `yaml:"address,omitempty"`

	// Port is the control port. Omit it to try 9051, then 9151.
	Port int `yaml:"port,omitempty"`

	// CookieFile overrides the cookie path Tor advertises.
	CookieFile string `yaml:"cookieFile,omitempty"`

	// PasswordEnv names the environment variable holding the control
	// password. The password itself is never stored in the file.
	PasswordEnv string `yaml:"passwordEnv,omitempty"`

	DialTimeout  time.Duration `yaml:"dialTimeout,omitempty"`
	BuildTimeout time.Duration `yaml:"buildTimeout,omitempty"`
}

// SamplingSection configures the relay draws.
type SamplingSection struct {
	Guards  int `yaml:"guards,omitempty"`
	Middles int `yaml:"middles,omitempty"`

	// Flags replaces the capability filter. An explicit empty list
	// admits every relay in the consensus.
	Flags *[]string `yaml:"flags,omitempty"`
}

// DisclosureSection configures the blur parameters. Each pair is replaced
// as a whole, e.g. {resolution: 1h, noise: 1h}.
type DisclosureSection struct {
	LogTime *blur.Params `yaml:"logTime,omitempty"`
	Elapsed *blur.Params `yaml:"elapsed,omitempty"`
}

// OutputSection configures the record stream.
type OutputSection struct {
	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
}

// TorSection configures the embedded Tor daemon.
type TorSection struct {
	Embedded       *bool         `yaml:"embedded,omitempty"`
	StartupTimeout time.Duration `yaml:"startupTimeout,omitempty"`
}

// Apply overrides the settings of cfg that the file sets.
func (f *File) Apply(cfg *Config) {
	if f.Control.Address != "" {
		cfg.ControlAddress = f.Control.Address
	}
	if f.Control.Port != 0 {
		cfg.ControlPort = f.Control.Port
	}
	if f.Control.CookieFile != "" {
		cfg.CookieFile = f.Control.CookieFile
	}
	if f.Control.PasswordEnv != "" {
		cfg.Password = os.Getenv(f.Control.PasswordEnv)
	}
	if f.Control.DialTimeout != 0 {
		cfg.DialTimeout = f.Control.DialTimeout
	}
	if f.Control.BuildTimeout != 0 {
		cfg.BuildTimeout = f.Control.BuildTimeout
	}

	if f.Sampling.Guards != 0 {
		cfg.Guards = f.Sampling.Guards
	}
	if f.Sampling.Middles != 0 {
		cfg.Middles = f.Sampling.Middles
	}
	if f.Sampling.Flags != nil {
		cfg.Flags = append([]string{}, (*f.Sampling.Flags)...)
	}

	if f.Disclosure.LogTime != nil {
		cfg.Disclosure.LogTime = *f.Disclosure.LogTime
	}
	if f.Disclosure.Elapsed != nil {
		cfg.Disclosure.Elapsed = *f.Disclosure.Elapsed
	}

	if f.Output.Format != "" {
		cfg.Format = f.Output.Format
	}

	if f.Tor.Embedded != nil {
		cfg.EmbeddedTor = *f.Tor.Embedded
	}
	if f.Tor.StartupTimeout != 0 {
		cfg.TorStartupTimeout = f.Tor.StartupTimeout
	}
}
