package main

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/oniongraph/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/oniongraph.yaml
var configTemplate embed.FS

// templatePath is the template inside configTemplate.
const templatePath = "templates/oniongraph.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented oniongraph configuration file",
		Long: `Init writes a configuration file holding every option at its default
value, each with a comment. The control password is never stored in it;
name an environment variable with control.passwordEnv instead.

Examples:
  # Create .oniongraph in the current directory
  oniongraph init

  # Create $XDG_CONFIG_HOME/oniongraph/config.yaml
  oniongraph init --xdg

  # Overwrite an existing file
  oniongraph init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().Bool("xdg", false,
		"Write to the per-user XDG configuration path instead of --output")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.MarkFlagsMutuallyExclusive("output", "xdg")

	return cmd
}

// initTarget returns where init writes the template.
func initTarget(cmd *cobra.Command) (string, error) {
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return "", err
	}
	if useXDG {
		return filepath.Join(config.XDGConfigDir(), config.XDGConfigFile), nil
	}
	return cmd.Flags().GetString("output")
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := initTarget(cmd)
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", outputPath, err)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// 0600: the file may name the cookie path and password variable.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit it to set:")
	fmt.Fprintln(out, "  - the Tor control port and how to authenticate")
	fmt.Fprintln(out, "  - how many guards and middles one run measures")
	fmt.Fprintln(out, "  - how strongly record times are blurred")
	fmt.Fprintln(out, "\nCheck the control port settings with: oniongraph check")

	return nil
}
