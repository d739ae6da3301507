package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/liftlog/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "liftlog",
	Short: "LiftLog is a workout tracking service",
	Long: `LiftLog tracks workouts and exercises behind cookie sessions with
double-submit CSRF protection.

Settings come from LIFTLOG_* environment variables, optionally loaded from a
.env file, and can be overridden by command flags.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")
}

// loadConfig reads the configuration named by --env-file.
func loadConfig() (*config.Config, error) {
	return config.Load(envFile)
}
