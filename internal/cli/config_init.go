package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/config"
)

// NewConfigInitCmd creates the config init command for writing a default
// configuration file.
func NewConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates ~/.solbeam/config.yaml with default environments. Edit it to point
each environment at an RPC endpoint, keypair file, and token mint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.New()

			if !force {
				if _, err := os.Stat(cfg.ConfigPath()); err == nil {
					return errors.New("configuration file already exists, use --force to overwrite")
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("cannot access config path %s: %w", cfg.ConfigPath(), err)
				}
			}

			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			cmd.Printf("Configuration initialized successfully\n")
			cmd.Printf("Configuration file: %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	return cmd
}
