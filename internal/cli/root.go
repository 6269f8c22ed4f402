package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowbook",
		Short: "Flowbook - appointment booking over encrypted chat flows",
		Long: "Flowbook serves the encrypted data-exchange endpoint of a chat booking flow,\n" +
			"offering free calendar slots and creating appointments for confirmed bookings.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			log = logging.New(nil, resolveLogLevel(""))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.flowbook/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newKeysCmd())
	cmd.AddCommand(newCalendarCmd())
	cmd.AddCommand(newBookingCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// resolveLogLevel picks the --log-level flag, then FLOWBOOK_LOG_LEVEL, then
// the configured level.
func resolveLogLevel(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	if env := os.Getenv("FLOWBOOK_LOG_LEVEL"); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return "info"
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
