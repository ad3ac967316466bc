package cli

import (
	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/config"
	"github.com/solbeam/solbeam/internal/logging"
)

// setupLogging configures logging based on the config file and CLI flags.
// --debug forces console output at debug level regardless of configuration.
func setupLogging(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	loggingCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = "console"
		loggingCfg.File = ""
	}

	result := logging.New(loggingCfg)
	logger = logging.ComponentLogger(result.Logger, "cli")
	cmd.SetContext(logger.WithContext(cmd.Context()))

	logger.Debug().Str("command", cmd.Name()).Msg("command started")
	return nil
}
